// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

import (
	"time"
)

// Update is one reconciliation input: a partial view of a job carried by a
// push event or a poll row. Absent fields leave the record untouched.
type Update struct {
	ID       string
	ScopeKey string

	// Status, when non-empty, replaces the record's status.
	Status Status

	// Stages carries the sub-phases present in this update. Stages missing
	// from the update keep their stored state.
	Stages []StageUpdate

	// Optional scalar fields; nil means absent. Present scalars are
	// last-write-wins, gated by the staleness check on UpdatedAt.
	Summary     *string
	LibraryName *string

	// Counts are assigned (not accumulated), so re-applying the same
	// update cannot double-count.
	Counts map[string]int64

	CorrelationID string

	// UpdatedAt is the backend's timestamp for this update. Zero means the
	// event carried none; such updates are accepted last-write-wins.
	UpdatedAt time.Time
}

// StageUpdate carries raw wire numbers for one stage. Processed and Total
// stay float64 until normalization so malformed payloads (fractions,
// negatives, NaN) can be coerced instead of rejected.
type StageUpdate struct {
	Name      string
	Status    Status
	Processed float64
	Total     float64
}

// Reduce merges one update into a record, pure and side-effect free.
//
// A nil existing record synthesizes a fresh one (status defaults to running
// when the update carries none). The returned bool is false when the update
// was rejected as stale: it carried a non-zero UpdatedAt older than the
// record's, in which case the record is returned unchanged. Applying the
// same update twice yields the same record as applying it once.
func Reduce(existing *JobRecord, upd Update, now time.Time) (JobRecord, bool) {
	if existing == nil {
		rec := synthesize(upd, now)
		return rec, true
	}

	// Stale guard: an out-of-order event must not overwrite newer state.
	// Equal timestamps are accepted so duplicate delivery stays idempotent.
	if !upd.UpdatedAt.IsZero() && !existing.UpdatedAt.IsZero() && upd.UpdatedAt.Before(existing.UpdatedAt) {
		return existing.Clone(), false
	}

	rec := existing.Clone()
	merge(&rec, upd, now)
	return rec, true
}

// synthesize builds a record for an update whose id was never seen.
func synthesize(upd Update, now time.Time) JobRecord {
	rec := JobRecord{
		ID:        upd.ID,
		ScopeKey:  upd.ScopeKey,
		Status:    StatusRunning,
		CreatedAt: now,
	}
	merge(&rec, upd, now)
	return rec
}

// merge applies the update's present fields onto rec in place.
// CreatedAt is preserved from first-seen; FinishedAt is written only on the
// first transition into a terminal status.
func merge(rec *JobRecord, upd Update, now time.Time) {
	if upd.Status != "" {
		rec.Status = upd.Status
	}

	for _, su := range upd.Stages {
		mergeStage(rec, su)
	}

	if upd.Summary != nil {
		rec.Summary = *upd.Summary
	}
	if upd.LibraryName != nil {
		rec.LibraryName = *upd.LibraryName
	}
	if upd.CorrelationID != "" {
		rec.CorrelationID = upd.CorrelationID
	}
	for k, v := range upd.Counts {
		if rec.Counts == nil {
			rec.Counts = make(map[string]int64, len(upd.Counts))
		}
		rec.Counts[k] = v
	}

	if rec.Status.IsTerminal() && rec.FinishedAt.IsZero() {
		rec.FinishedAt = now
	}

	// UpdatedAt never moves backwards.
	stamp := upd.UpdatedAt
	if stamp.IsZero() {
		stamp = now
	}
	if stamp.After(rec.UpdatedAt) {
		rec.UpdatedAt = stamp
	}
}

// mergeStage replaces the named stage's fields with normalized values,
// appending the stage in arrival order when it is new.
func mergeStage(rec *JobRecord, su StageUpdate) {
	st := Stage{
		Name:      su.Name,
		Status:    su.Status,
		Processed: normalizeCount(su.Processed),
		Total:     normalizeCount(su.Total),
	}
	if st.Status == "" {
		st.Status = StatusRunning
	}

	for i := range rec.Stages {
		if rec.Stages[i].Name == su.Name {
			rec.Stages[i] = st
			return
		}
	}
	rec.Stages = append(rec.Stages, st)
}
