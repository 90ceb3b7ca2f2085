// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package api

import (
	"math"
	"time"

	"github.com/adunn/switchboard/internal/jobs"
)

// wireJob is one job as the REST API returns it. The same normalization
// rules apply as for push events: fractional or negative counters are
// coerced, unknown statuses map to the empty status.
type wireJob struct {
	ID          string             `json:"id"`
	Scope       string             `json:"scope"`
	Status      string             `json:"status"`
	Summary     *string            `json:"summary"`
	LibraryName *string            `json:"library_name"`
	Stages      []wireJobStage     `json:"stages"`
	Counts      map[string]float64 `json:"counts"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

type wireJobStage struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Processed float64 `json:"processed"`
	Total     float64 `json:"total"`
}

// record converts the wire form into a store record.
func (w wireJob) record() jobs.JobRecord {
	rec := jobs.JobRecord{
		ID:         w.ID,
		ScopeKey:   w.Scope,
		Status:     jobs.ParseStatus(w.Status),
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
		FinishedAt: w.FinishedAt,
	}
	if w.Summary != nil {
		rec.Summary = *w.Summary
	}
	if w.LibraryName != nil {
		rec.LibraryName = *w.LibraryName
	}
	if len(w.Stages) > 0 {
		rec.Stages = make([]jobs.Stage, 0, len(w.Stages))
		for _, st := range w.Stages {
			rec.Stages = append(rec.Stages, jobs.Stage{
				Name:      st.Name,
				Status:    jobs.ParseStatus(st.Status),
				Processed: coerceCount(st.Processed),
				Total:     coerceCount(st.Total),
			})
		}
	}
	if len(w.Counts) > 0 {
		rec.Counts = make(map[string]int64, len(w.Counts))
		for k, v := range w.Counts {
			rec.Counts[k] = coerceCount(v)
		}
	}
	return rec
}

// coerceCount clamps a raw wire counter: non-finite and negative values
// collapse to 0, fractions truncate.
func coerceCount(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int64(f)
}

// jobListResponse is the paginated job listing envelope.
type jobListResponse struct {
	Count   int       `json:"count"`
	Results []wireJob `json:"results"`
}

// collectionResponse is the envelope shared by the collection re-fetch
// endpoints; only the count is consumed.
type collectionResponse struct {
	Count int `json:"count"`
}

// purgeResponse reports how many jobs a purge removed.
type purgeResponse struct {
	Removed int `json:"removed"`
}
