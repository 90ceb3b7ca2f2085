// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/adunn/switchboard/internal/jobs"
)

// Event type discriminators carried in data.type.
const (
	EventTypeMediaScan        = "media_scan"
	EventTypeM3URefresh       = "m3u_refresh"
	EventTypeEPGRefresh       = "epg_refresh"
	EventTypeComskipStatus    = "comskip_status"
	EventTypeBulkCreate       = "bulk_create"
	EventTypeRecordingUpdated = "recording_updated"
)

// ErrUnknownEventType marks a discriminator with no registered decoder.
var ErrUnknownEventType = errors.New("unknown event type")

// Event is the decoded, typed form of one push event. The set is sealed:
// Router.Dispatch switches over every implementation, so adding an event
// type is a compiler-checked change, not a silently ignored default case.
type Event interface {
	EventType() string
}

// flexID accepts a JSON string or number id and normalizes it to a string.
// Backends are inconsistent about numeric ids (library_id: 7 vs "7").
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// wireStage is one stage entry as it appears on the wire. Counters stay
// float64 until jobs normalization coerces them.
type wireStage struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Processed float64 `json:"processed"`
	Total     float64 `json:"total"`
}

func stageUpdates(stages []wireStage) []jobs.StageUpdate {
	if len(stages) == 0 {
		return nil
	}
	out := make([]jobs.StageUpdate, 0, len(stages))
	for _, st := range stages {
		out = append(out, jobs.StageUpdate{
			Name:      st.Name,
			Status:    jobs.ParseStatus(st.Status),
			Processed: st.Processed,
			Total:     st.Total,
		})
	}
	return out
}

// parseEventTime parses a wire timestamp, tolerantly. Unparseable or absent
// timestamps yield the zero time, which the merge treats as last-write-wins.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func countsFromWire(in map[string]float64) map[string]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		if v < 0 {
			v = 0
		}
		out[k] = int64(v)
	}
	return out
}

// MediaScanEvent reports library scan progress (stages: discovery,
// metadata, artwork).
type MediaScanEvent struct {
	ScanID      flexID             `json:"scan_id"`
	LibraryID   flexID             `json:"library_id"`
	LibraryName *string            `json:"library_name"`
	Status      string             `json:"status"`
	Summary     *string            `json:"summary"`
	Stages      []wireStage        `json:"stages"`
	Counts      map[string]float64 `json:"counts"`
	UpdatedAt   string             `json:"updated_at"`
}

func (*MediaScanEvent) EventType() string { return EventTypeMediaScan }

// Update converts the event into a reconciliation input for the scans store.
func (e *MediaScanEvent) Update() jobs.Update {
	return jobs.Update{
		ID:          string(e.ScanID),
		ScopeKey:    string(e.LibraryID),
		Status:      jobs.ParseStatus(e.Status),
		Stages:      stageUpdates(e.Stages),
		Summary:     e.Summary,
		LibraryName: e.LibraryName,
		Counts:      countsFromWire(e.Counts),
		UpdatedAt:   parseEventTime(e.UpdatedAt),
	}
}

// M3URefreshEvent reports playlist (M3U account) refresh progress.
type M3URefreshEvent struct {
	RefreshID  flexID             `json:"refresh_id"`
	PlaylistID flexID             `json:"playlist_id"`
	Status     string             `json:"status"`
	Summary    *string            `json:"summary"`
	Stages     []wireStage        `json:"stages"`
	Counts     map[string]float64 `json:"counts"`
	UpdatedAt  string             `json:"updated_at"`
}

func (*M3URefreshEvent) EventType() string { return EventTypeM3URefresh }

func (e *M3URefreshEvent) Update() jobs.Update {
	return jobs.Update{
		ID:        string(e.RefreshID),
		ScopeKey:  string(e.PlaylistID),
		Status:    jobs.ParseStatus(e.Status),
		Stages:    stageUpdates(e.Stages),
		Summary:   e.Summary,
		Counts:    countsFromWire(e.Counts),
		UpdatedAt: parseEventTime(e.UpdatedAt),
	}
}

// EPGRefreshEvent reports electronic programme guide refresh progress.
type EPGRefreshEvent struct {
	RefreshID flexID             `json:"refresh_id"`
	SourceID  flexID             `json:"source_id"`
	Status    string             `json:"status"`
	Summary   *string            `json:"summary"`
	Stages    []wireStage        `json:"stages"`
	Counts    map[string]float64 `json:"counts"`
	UpdatedAt string             `json:"updated_at"`
}

func (*EPGRefreshEvent) EventType() string { return EventTypeEPGRefresh }

func (e *EPGRefreshEvent) Update() jobs.Update {
	return jobs.Update{
		ID:        string(e.RefreshID),
		ScopeKey:  string(e.SourceID),
		Status:    jobs.ParseStatus(e.Status),
		Stages:    stageUpdates(e.Stages),
		Summary:   e.Summary,
		Counts:    countsFromWire(e.Counts),
		UpdatedAt: parseEventTime(e.UpdatedAt),
	}
}

// ComskipStatusEvent reports commercial detection progress for one
// recording. Self-sufficient: it never triggers a dependent re-fetch.
type ComskipStatusEvent struct {
	JobID       flexID  `json:"job_id"`
	RecordingID flexID  `json:"recording_id"`
	Status      string  `json:"status"`
	Summary     *string `json:"summary"`
	Processed   float64 `json:"processed"`
	Total       float64 `json:"total"`
	UpdatedAt   string  `json:"updated_at"`
}

func (*ComskipStatusEvent) EventType() string { return EventTypeComskipStatus }

func (e *ComskipStatusEvent) Update() jobs.Update {
	return jobs.Update{
		ID:       string(e.JobID),
		ScopeKey: string(e.RecordingID),
		Status:   jobs.ParseStatus(e.Status),
		Stages: []jobs.StageUpdate{{
			Name:      "detection",
			Status:    jobs.ParseStatus(e.Status),
			Processed: e.Processed,
			Total:     e.Total,
		}},
		Summary:   e.Summary,
		UpdatedAt: parseEventTime(e.UpdatedAt),
	}
}

// BulkCreateEvent reports bulk channel-creation progress.
type BulkCreateEvent struct {
	JobID     flexID             `json:"job_id"`
	Status    string             `json:"status"`
	Summary   *string            `json:"summary"`
	Stages    []wireStage        `json:"stages"`
	Counts    map[string]float64 `json:"counts"`
	UpdatedAt string             `json:"updated_at"`
}

func (*BulkCreateEvent) EventType() string { return EventTypeBulkCreate }

func (e *BulkCreateEvent) Update() jobs.Update {
	return jobs.Update{
		ID:        string(e.JobID),
		ScopeKey:  jobs.ScopeAll,
		Status:    jobs.ParseStatus(e.Status),
		Stages:    stageUpdates(e.Stages),
		Summary:   e.Summary,
		Counts:    countsFromWire(e.Counts),
		UpdatedAt: parseEventTime(e.UpdatedAt),
	}
}

// RecordingUpdatedEvent is a pure notification: recording state changed
// server-side and the recordings collection must be re-fetched. It carries
// no payload to reconcile.
type RecordingUpdatedEvent struct {
	RecordingID flexID `json:"recording_id"`
}

func (*RecordingUpdatedEvent) EventType() string { return EventTypeRecordingUpdated }

// DecodeEvent decodes an envelope's payload into its typed event.
// Returns ErrUnknownEventType for a discriminator outside the sealed set.
func DecodeEvent(env Envelope) (Event, error) {
	var ev Event
	switch env.EventType {
	case EventTypeMediaScan:
		ev = &MediaScanEvent{}
	case EventTypeM3URefresh:
		ev = &M3URefreshEvent{}
	case EventTypeEPGRefresh:
		ev = &EPGRefreshEvent{}
	case EventTypeComskipStatus:
		ev = &ComskipStatusEvent{}
	case EventTypeBulkCreate:
		ev = &BulkCreateEvent{}
	case EventTypeRecordingUpdated:
		ev = &RecordingUpdatedEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}

	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.EventType, err)
	}
	return ev, nil
}
