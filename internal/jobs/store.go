// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// Store is one domain's reconciliation store: an indexed collection of
// JobRecord values, keyed by id and mirrored under the record's own scope
// key and the aggregate "all" scope.
//
// The Connection Manager's router and any number of pollers call into the
// same store; every locate-then-write runs under one mutex so interleaved
// callers cannot lose updates. Records handed out are clones; callers never
// see store internals mutate.
type Store struct {
	domain string

	mu      sync.Mutex
	byID    map[string]*JobRecord
	byScope map[string]map[string]*JobRecord

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewStore creates an empty store for the named job domain
// (e.g. "scans", "playlists", "epg").
func NewStore(domain string) *Store {
	return &Store{
		domain:  domain,
		byID:    make(map[string]*JobRecord),
		byScope: make(map[string]map[string]*JobRecord),
		now:     time.Now,
	}
}

// Domain returns the store's domain name.
func (s *Store) Domain() string {
	return s.domain
}

// SetClock replaces the store's clock. Test use only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ApplyUpdate merges one update into the collection, idempotently.
//
// The record is located by id; if absent it is synthesized with defaults.
// The merged record lands in its own scope index and the "all" index in the
// same locked section, so the two views can never diverge. The returned
// bool is false when the update was dropped as stale.
func (s *Store) ApplyUpdate(upd Update) (JobRecord, bool) {
	if upd.ID == "" {
		logging.Warn().Str("domain", s.domain).Msg("dropping update with empty id")
		metrics.ReconcileDropped.WithLabelValues(s.domain, "no_id").Inc()
		return JobRecord{}, false
	}
	if upd.ScopeKey == "" {
		upd.ScopeKey = ScopeAll
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byID[upd.ID]
	merged, applied := Reduce(existing, upd, s.now())
	if !applied {
		metrics.ReconcileDropped.WithLabelValues(s.domain, "stale").Inc()
		logging.Debug().
			Str("domain", s.domain).
			Str("id", upd.ID).
			Time("update_at", upd.UpdatedAt).
			Time("record_at", merged.UpdatedAt).
			Msg("dropped stale update")
		return merged, false
	}

	s.indexLocked(&merged)
	metrics.ReconcileApplied.WithLabelValues(s.domain).Inc()
	return merged.Clone(), true
}

// Upsert inserts or replaces a record wholesale by id. Used for responses
// to explicit actions ("scan started") and for poll results.
//
// First-seen CreatedAt and a terminal record's FinishedAt survive the
// replace when the incoming record does not carry its own values.
func (s *Store) Upsert(rec JobRecord) JobRecord {
	if rec.ScopeKey == "" {
		rec.ScopeKey = ScopeAll
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing := s.byID[rec.ID]; existing != nil {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
		if rec.FinishedAt.IsZero() && !existing.FinishedAt.IsZero() {
			rec.FinishedAt = existing.FinishedAt
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Status.IsTerminal() && rec.FinishedAt.IsZero() {
		rec.FinishedAt = now
	}

	s.indexLocked(&rec)
	metrics.ReconcileApplied.WithLabelValues(s.domain).Inc()
	return rec.Clone()
}

// indexLocked writes rec into byID, its own scope index, and the "all"
// index under one logical update. Must be called with s.mu held.
func (s *Store) indexLocked(rec *JobRecord) {
	if prev := s.byID[rec.ID]; prev != nil && prev.ScopeKey != rec.ScopeKey {
		// Scope moved (rare: backend re-homed the job); drop the old index entry.
		if idx := s.byScope[prev.ScopeKey]; idx != nil {
			delete(idx, rec.ID)
		}
	}

	stored := rec.Clone()
	s.byID[rec.ID] = &stored

	for _, scope := range []string{rec.ScopeKey, ScopeAll} {
		idx := s.byScope[scope]
		if idx == nil {
			idx = make(map[string]*JobRecord)
			s.byScope[scope] = idx
		}
		idx[rec.ID] = &stored
		if scope == ScopeAll && rec.ScopeKey == ScopeAll {
			break
		}
	}
}

// Remove deletes the record from every scope index. It is the explicit
// delete path; reconciliation never removes records.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) bool {
	rec := s.byID[id]
	if rec == nil {
		return false
	}
	delete(s.byID, id)
	if idx := s.byScope[rec.ScopeKey]; idx != nil {
		delete(idx, id)
	}
	if idx := s.byScope[ScopeAll]; idx != nil {
		delete(idx, id)
	}
	return true
}

// Purge removes every record matching the filter and returns the count.
// A nil filter purges terminal records.
func (s *Store) Purge(filter func(JobRecord) bool) int {
	if filter == nil {
		filter = func(r JobRecord) bool { return r.Status.IsTerminal() }
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.byID {
		if filter(rec.Clone()) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	return len(ids)
}

// Get returns a clone of the record reachable under the given scope.
func (s *Store) Get(scope, id string) (JobRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.byScope[scope]
	if idx == nil {
		return JobRecord{}, false
	}
	rec := idx[id]
	if rec == nil {
		return JobRecord{}, false
	}
	return rec.Clone(), true
}

// List returns clones of every record under the given scope, ordered by
// CreatedAt then id so iteration order is deterministic.
func (s *Store) List(scope string) []JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.byScope[scope]
	out := make([]JobRecord, 0, len(idx))
	for _, rec := range idx {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of records under the given scope.
func (s *Store) Len(scope string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byScope[scope])
}
