// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package api

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// gate serializes re-fetches of one collection kind: at most one request
// in flight, at most one per minimum interval.
type gate struct {
	lim  *rate.Limiter
	busy atomic.Bool
}

func newGate(minInterval time.Duration) *gate {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &gate{lim: rate.NewLimiter(limit, 1)}
}

// Runner executes dependent re-fetch effects against the REST API.
//
// Effects of the same kind coalesce: while a re-fetch is in flight, or
// inside the minimum interval since the last one, further triggers are
// skipped. Skipping is safe — the adaptive poller re-fetches on its own
// cadence regardless.
type Runner struct {
	client *Client

	mediaItems *gate
	channels   *gate
	guide      *gate
	recordings *gate
}

// NewRunner creates a runner over the client. minInterval spaces re-fetches
// per effect kind; zero or negative disables the interval limit.
func NewRunner(client *Client, minInterval time.Duration) *Runner {
	return &Runner{
		client:     client,
		mediaItems: newGate(minInterval),
		channels:   newGate(minInterval),
		guide:      newGate(minInterval),
		recordings: newGate(minInterval),
	}
}

// Run executes one effect. Implements jobs.EffectRunner.
func (r *Runner) Run(ctx context.Context, eff jobs.Effect) error {
	switch e := eff.(type) {
	case jobs.RefreshMediaItems:
		return r.refresh(ctx, "media_items", r.mediaItems, func() (int, error) {
			return r.client.FetchMediaItems(ctx, e.LibraryID)
		})
	case jobs.RefreshChannels:
		return r.refresh(ctx, "channels", r.channels, func() (int, error) {
			return r.client.FetchChannels(ctx, e.PlaylistID)
		})
	case jobs.RefreshGuide:
		return r.refresh(ctx, "guide", r.guide, func() (int, error) {
			return r.client.FetchGuide(ctx, e.SourceID)
		})
	case jobs.RefreshRecordings:
		return r.refresh(ctx, "recordings", r.recordings, func() (int, error) {
			return r.client.FetchRecordings(ctx)
		})
	default:
		return fmt.Errorf("unhandled effect type %T", eff)
	}
}

func (r *Runner) refresh(ctx context.Context, kind string, g *gate, fetch func() (int, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.busy.CompareAndSwap(false, true) {
		logging.Debug().Str("kind", kind).Msg("dependent refresh already in flight, skipped")
		return nil
	}
	defer g.busy.Store(false)

	if !g.lim.Allow() {
		logging.Debug().Str("kind", kind).Msg("dependent refresh collapsed by rate limit")
		return nil
	}

	count, err := fetch()
	if err != nil {
		return err
	}
	metrics.DependentRefreshes.WithLabelValues(kind).Inc()
	logging.Debug().Str("kind", kind).Int("count", count).Msg("dependent refresh completed")
	return nil
}
