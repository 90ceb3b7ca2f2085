// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// FetchFunc fetches the backend's current job listing for one domain.
type FetchFunc func(ctx context.Context) ([]jobs.JobRecord, error)

// Stats is a snapshot of one poller's activity.
type Stats struct {
	Ticks        uint64
	Errors       uint64
	LastPoll     time.Time
	LastProgress time.Time
	LastDelay    time.Duration
}

// Poller keeps one domain store converging by polling the job listing.
//
// The first poll runs immediately (foreground); subsequent polls run on an
// adaptive delay derived from the poller's own most recent fetch result,
// never from shared store state. A fetch that completes after the poller
// is stopped is discarded without touching the store.
type Poller struct {
	domain  string
	cfg     config.PollingConfig
	fetch   FetchFunc
	store   *jobs.Store
	effects jobs.EffectRunner

	// refresh, when non-nil, is the dependent re-fetch this domain's
	// forward progress triggers.
	refresh jobs.Effect

	mu          sync.Mutex
	stats       Stats
	lastRefresh time.Time

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates a poller for one domain. effects and refresh may be nil for
// domains whose progress triggers no dependent re-fetch.
func New(cfg config.PollingConfig, store *jobs.Store, fetch FetchFunc, effects jobs.EffectRunner, refresh jobs.Effect) *Poller {
	return &Poller{
		domain:  store.Domain(),
		cfg:     cfg,
		fetch:   fetch,
		store:   store,
		effects: effects,
		refresh: refresh,
		now:     time.Now,
	}
}

// SetClock replaces the poller's clock. Test use only.
func (p *Poller) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Stats returns a snapshot of the poller's counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Serve runs the poll loop until ctx is cancelled. Implements
// suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	p.mu.Lock()
	p.lastRefresh = p.now()
	p.mu.Unlock()

	mode := "foreground"
	for {
		delay, _ := p.pollOnce(ctx, mode)
		mode = "background"
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PollNow runs one foreground poll outside the loop, for explicit refresh
// actions. Returns the delay the loop would have chosen, and the fetch
// error if the poll failed.
func (p *Poller) PollNow(ctx context.Context) (time.Duration, error) {
	return p.pollOnce(ctx, "foreground")
}

// pollOnce fetches, merges, and returns the next delay derived from this
// fetch's results.
func (p *Poller) pollOnce(ctx context.Context, mode string) (time.Duration, error) {
	metrics.PollTicks.WithLabelValues(p.domain, mode).Inc()

	now := p.clockNow()
	recs, err := p.fetch(ctx)

	// Teardown while the fetch was in flight: discard the results so a
	// fresh session never inherits them.
	if ctx.Err() != nil {
		return p.cfg.LongInterval, ctx.Err()
	}

	p.mu.Lock()
	p.stats.Ticks++
	p.stats.LastPoll = now
	p.mu.Unlock()

	if err != nil {
		metrics.PollErrors.WithLabelValues(p.domain).Inc()
		p.mu.Lock()
		p.stats.Errors++
		p.mu.Unlock()
		logging.Warn().Err(err).Str("domain", p.domain).Msg("poll fetch failed")
		return p.setDelay(p.cfg.MediumInterval), err
	}

	progress := false
	anyActive := false
	anyWaiting := false
	for _, rec := range recs {
		prev, had := p.store.Get(jobs.ScopeAll, rec.ID)
		merged := p.store.Upsert(rec)
		if p.advanced(prev, had, merged) {
			progress = true
		}
		if merged.Status.IsActive() {
			anyActive = true
		}
		if merged.Status.IsWaiting() {
			anyWaiting = true
		}
	}

	if progress {
		p.mu.Lock()
		p.stats.LastProgress = now
		p.mu.Unlock()
	}
	p.maybeRefresh(ctx, progress, now)

	switch {
	case anyActive:
		return p.setDelay(p.cfg.ShortInterval), nil
	case anyWaiting:
		return p.setDelay(p.cfg.MediumInterval), nil
	default:
		return p.setDelay(p.cfg.LongInterval), nil
	}
}

// advanced reports whether the merged record moved forward relative to
// what the store held before this poll.
func (p *Poller) advanced(prev jobs.JobRecord, had bool, merged jobs.JobRecord) bool {
	if !had {
		return true
	}
	if merged.Status != prev.Status {
		return true
	}
	if merged.UpdatedAt.After(prev.UpdatedAt) {
		return true
	}
	var before, after int64
	for _, st := range prev.Stages {
		before += st.Processed
	}
	for _, st := range merged.Stages {
		after += st.Processed
	}
	return after > before
}

// maybeRefresh triggers the domain's dependent re-fetch when this poll
// observed forward progress, or when MaxQuiet elapsed without one.
func (p *Poller) maybeRefresh(ctx context.Context, progress bool, now time.Time) {
	if p.effects == nil || p.refresh == nil {
		return
	}

	p.mu.Lock()
	quietTooLong := p.cfg.MaxQuiet > 0 && now.Sub(p.lastRefresh) >= p.cfg.MaxQuiet
	due := progress || quietTooLong
	if due {
		p.lastRefresh = now
	}
	p.mu.Unlock()
	if !due {
		return
	}

	if err := p.effects.Run(ctx, p.refresh); err != nil {
		logging.Warn().Err(err).Str("domain", p.domain).Msg("dependent refresh failed")
	}
}

func (p *Poller) setDelay(d time.Duration) time.Duration {
	p.mu.Lock()
	p.stats.LastDelay = d
	p.mu.Unlock()
	return d
}

func (p *Poller) clockNow() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now()
}
