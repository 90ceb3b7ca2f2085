// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

import (
	"math"
	"strings"
	"time"
)

// ScopeAll is the sentinel scope key under which every record is mirrored,
// regardless of its own scope.
const ScopeAll = "all"

// Status is the normalized lifecycle state of a background job or stage.
// Domain-specific vocabularies ("started", "scheduled", "error", ...) are
// mapped onto this set by ParseStatus.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusSkipped only appears on stages: the stage was not applicable
	// for this job and contributes no progress.
	StatusSkipped Status = "skipped"
)

// ParseStatus maps a domain vocabulary word onto the normalized Status set.
// Returns empty Status for unknown or empty input; callers choose the
// default (ApplyUpdate defaults a synthesized record to running).
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending
	case "queued", "scheduled":
		return StatusQueued
	case "running", "started", "discovered", "in_progress", "processing":
		return StatusRunning
	case "completed", "complete", "finished", "success":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	case "skipped":
		return StatusSkipped
	default:
		return ""
	}
}

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job is doing work right now.
func (s Status) IsActive() bool {
	return s == StatusRunning
}

// IsWaiting reports whether the job is waiting to run.
func (s Status) IsWaiting() bool {
	return s == StatusPending || s == StatusQueued
}

// Stage is a named sub-phase of a job (discovery, metadata, artwork, ...).
type Stage struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Processed int64  `json:"processed"`
	Total     int64  `json:"total"`
}

// Percent derives the stage's display percentage. It is recomputed on every
// call; nothing synthetic is ever stored back on the stage.
//
// With a known total the ratio saturates at 100 (a backend may briefly
// report processed > total; the raw values are kept as-is). With an unknown
// total (0), a completed stage is 100, a skipped stage is 0, and an
// in-progress stage is derived as processed/(processed+1) so it approaches
// but never reaches 100 until the status flips to completed.
func (s Stage) Percent() float64 {
	if s.Total > 0 {
		pct := float64(s.Processed) / float64(s.Total) * 100
		if pct > 100 {
			return 100
		}
		if pct < 0 {
			return 0
		}
		return pct
	}

	switch s.Status {
	case StatusCompleted:
		return 100
	case StatusSkipped:
		return 0
	default:
		return float64(s.Processed) / float64(s.Processed+1) * 100
	}
}

// JobRecord represents one long-running background unit of work.
//
// UpdatedAt is monotonically non-decreasing per ID; reconciliation never
// lets an older update overwrite a newer one. FinishedAt is set once, the
// first time Status turns terminal, and never overwritten.
type JobRecord struct {
	ID            string           `json:"id"`
	ScopeKey      string           `json:"scope_key"`
	Status        Status           `json:"status"`
	Stages        []Stage          `json:"stages,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	LibraryName   string           `json:"library_name,omitempty"`
	Counts        map[string]int64 `json:"counts,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// Clone returns a deep copy, safe to hand out across the store boundary.
func (r JobRecord) Clone() JobRecord {
	out := r
	if r.Stages != nil {
		out.Stages = make([]Stage, len(r.Stages))
		copy(out.Stages, r.Stages)
	}
	if r.Counts != nil {
		out.Counts = make(map[string]int64, len(r.Counts))
		for k, v := range r.Counts {
			out.Counts[k] = v
		}
	}
	return out
}

// Stage returns the named stage and whether it exists.
func (r JobRecord) Stage(name string) (Stage, bool) {
	for _, st := range r.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// normalizeCount coerces a raw wire number into a usable counter.
// Non-finite and negative inputs collapse to 0.
func normalizeCount(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int64(f)
}
