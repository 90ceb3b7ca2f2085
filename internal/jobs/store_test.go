// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore("scans")
	s.SetClock(func() time.Time { return t0 })
	return s
}

func TestApplyUpdateScopeMirroring(t *testing.T) {
	s := newTestStore(t)

	// Scenario: a completed media_scan event for a record not yet in any
	// store lands under its library scope and the "all" scope, identically.
	_, applied := s.ApplyUpdate(Update{
		ID:       "scan-1",
		ScopeKey: "7",
		Status:   StatusCompleted,
	})
	if !applied {
		t.Fatal("expected update to apply")
	}

	scoped, ok := s.Get("7", "scan-1")
	if !ok {
		t.Fatal("record missing under own scope")
	}
	all, ok := s.Get(ScopeAll, "scan-1")
	if !ok {
		t.Fatal("record missing under all scope")
	}
	if scoped.ID != all.ID || scoped.Status != all.Status || !scoped.FinishedAt.Equal(all.FinishedAt) {
		t.Errorf("scoped and all views diverged:\nscoped: %+v\nall:    %+v", scoped, all)
	}
	if scoped.FinishedAt.IsZero() {
		t.Error("completed record must have FinishedAt set")
	}
}

func TestScopeMirroringInvariantAfterMixedOps(t *testing.T) {
	s := newTestStore(t)

	s.ApplyUpdate(Update{ID: "a", ScopeKey: "1", Status: StatusRunning})
	s.Upsert(JobRecord{ID: "b", ScopeKey: "2", Status: StatusQueued})
	s.ApplyUpdate(Update{ID: "a", ScopeKey: "1", Status: StatusCompleted})
	s.Upsert(JobRecord{ID: "c", ScopeKey: "1", Status: StatusRunning})

	for _, scope := range []string{"1", "2"} {
		for _, rec := range s.List(scope) {
			if _, ok := s.Get(ScopeAll, rec.ID); !ok {
				t.Errorf("record %s under scope %s missing from all scope", rec.ID, scope)
			}
		}
	}
	for _, rec := range s.List(ScopeAll) {
		if _, ok := s.Get(rec.ScopeKey, rec.ID); !ok {
			t.Errorf("record %s under all missing from own scope %s", rec.ID, rec.ScopeKey)
		}
	}
}

func TestApplyUpdateIdempotentOnStore(t *testing.T) {
	s := newTestStore(t)
	upd := Update{
		ID:        "scan-1",
		ScopeKey:  "7",
		Status:    StatusRunning,
		Stages:    []StageUpdate{{Name: "discovery", Status: StatusRunning, Processed: 10, Total: 40}},
		Counts:    map[string]int64{"found": 10},
		UpdatedAt: t0,
	}

	s.ApplyUpdate(upd)
	first, _ := s.Get("7", "scan-1")
	s.ApplyUpdate(upd)
	second, _ := s.Get("7", "scan-1")

	if first.Counts["found"] != second.Counts["found"] {
		t.Error("duplicate event double-counted")
	}
	if len(first.Stages) != len(second.Stages) {
		t.Error("duplicate event duplicated stage entries")
	}
	if s.Len(ScopeAll) != 1 || s.Len("7") != 1 {
		t.Error("duplicate event created duplicate records")
	}
}

func TestApplyUpdateRejectsEmptyID(t *testing.T) {
	s := newTestStore(t)
	if _, applied := s.ApplyUpdate(Update{ScopeKey: "7"}); applied {
		t.Error("update without id must be dropped")
	}
	if s.Len(ScopeAll) != 0 {
		t.Error("dropped update must not create a record")
	}
}

func TestUpsertPreservesFirstSeenTimes(t *testing.T) {
	s := newTestStore(t)

	s.Upsert(JobRecord{ID: "j1", ScopeKey: "7", Status: StatusCompleted})
	orig, _ := s.Get("7", "j1")

	s.SetClock(func() time.Time { return t0.Add(time.Hour) })
	// Poll result without timestamps replaces the record wholesale.
	s.Upsert(JobRecord{ID: "j1", ScopeKey: "7", Status: StatusCompleted, Summary: "done"})

	got, _ := s.Get("7", "j1")
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want first-seen %v", got.CreatedAt, orig.CreatedAt)
	}
	if !got.FinishedAt.Equal(orig.FinishedAt) {
		t.Errorf("FinishedAt = %v, want stable %v", got.FinishedAt, orig.FinishedAt)
	}
	if got.Summary != "done" {
		t.Errorf("Summary = %q, upsert must replace fields", got.Summary)
	}
}

func TestRemoveClearsAllScopes(t *testing.T) {
	s := newTestStore(t)
	s.ApplyUpdate(Update{ID: "j1", ScopeKey: "7", Status: StatusRunning})

	if !s.Remove("j1") {
		t.Fatal("expected Remove to find the record")
	}
	if _, ok := s.Get("7", "j1"); ok {
		t.Error("record still reachable under own scope after Remove")
	}
	if _, ok := s.Get(ScopeAll, "j1"); ok {
		t.Error("record still reachable under all scope after Remove")
	}
	if s.Remove("j1") {
		t.Error("second Remove must report not found")
	}
}

func TestPurgeTerminalByDefault(t *testing.T) {
	s := newTestStore(t)
	s.ApplyUpdate(Update{ID: "done", ScopeKey: "1", Status: StatusCompleted})
	s.ApplyUpdate(Update{ID: "dead", ScopeKey: "1", Status: StatusFailed})
	s.ApplyUpdate(Update{ID: "live", ScopeKey: "1", Status: StatusRunning})

	if got := s.Purge(nil); got != 2 {
		t.Errorf("Purge removed %d records, want 2", got)
	}
	if _, ok := s.Get("1", "live"); !ok {
		t.Error("running record must survive purge")
	}
	if s.Len(ScopeAll) != 1 {
		t.Errorf("all scope has %d records after purge, want 1", s.Len(ScopeAll))
	}
}

func TestListDeterministicOrder(t *testing.T) {
	s := newTestStore(t)
	base := t0
	for _, id := range []string{"c", "a", "b"} {
		s.Upsert(JobRecord{ID: id, ScopeKey: "1", Status: StatusRunning, CreatedAt: base})
	}

	recs := s.List("1")
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if recs[i].ID != id {
			t.Errorf("List()[%d] = %q, want %q (ties break by id)", i, recs[i].ID, id)
		}
	}
}

func TestStoreClonesOnRead(t *testing.T) {
	s := newTestStore(t)
	s.ApplyUpdate(Update{
		ID: "j1", ScopeKey: "1",
		Stages: []StageUpdate{{Name: "discovery", Status: StatusRunning, Processed: 1, Total: 10}},
	})

	rec, _ := s.Get("1", "j1")
	rec.Stages[0].Processed = 999

	again, _ := s.Get("1", "j1")
	if again.Stages[0].Processed != 1 {
		t.Error("mutating a returned record must not affect the store")
	}
}

func TestInterleavedCallersNoLostUpdates(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.ApplyUpdate(Update{
				ID:       fmt.Sprintf("j%d", i),
				ScopeKey: fmt.Sprintf("%d", i%5),
				Status:   StatusRunning,
			})
		}(i)
	}
	wg.Wait()

	if got := s.Len(ScopeAll); got != 50 {
		t.Errorf("all scope has %d records, want 50", got)
	}
	total := 0
	for scope := 0; scope < 5; scope++ {
		total += s.Len(fmt.Sprintf("%d", scope))
	}
	if total != 50 {
		t.Errorf("scoped indices hold %d records, want 50", total)
	}
}

func TestRegistryDomains(t *testing.T) {
	r := NewRegistry()
	if len(r.All()) != 5 {
		t.Fatalf("expected 5 domain stores, got %d", len(r.All()))
	}
	if r.Scans.Domain() != DomainScans || r.EPG.Domain() != DomainEPG {
		t.Error("unexpected domain names")
	}

	r.Scans.ApplyUpdate(Update{ID: "j1", ScopeKey: "1", Status: StatusRunning})
	r.Reset()
	if r.Scans.Len(ScopeAll) != 0 {
		t.Error("Reset must clear every store")
	}
}
