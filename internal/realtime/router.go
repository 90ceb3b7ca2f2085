// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package realtime

import (
	"errors"

	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// Router dispatches decoded events into their domain stores. Each event
// type maps to exactly one store; the dispatch switch is exhaustive over
// the sealed Event set.
//
// Route returns the dependent re-fetch effects reconciliation produced but
// never executes them. An unknown or malformed event is logged, counted,
// and dropped; routing never fails the connection.
type Router struct {
	stores *jobs.Registry
}

// NewRouter creates a router over the given store registry.
func NewRouter(stores *jobs.Registry) *Router {
	return &Router{stores: stores}
}

// Route parses one raw push frame end to end: envelope, typed event,
// store reconciliation. Framing messages are acknowledged and skipped.
func (r *Router) Route(raw []byte) []jobs.Effect {
	env, err := ParseEnvelope(raw)
	if err != nil {
		metrics.ParseErrors.Inc()
		logging.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping unparseable push message")
		return nil
	}
	if env.Framing {
		logging.Debug().Msg("push channel acknowledged by backend")
		return nil
	}

	ev, err := DecodeEvent(env)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			metrics.EventsUnknown.Inc()
			logging.Debug().Str("event_type", env.EventType).Msg("ignoring unknown event type")
		} else {
			metrics.ParseErrors.Inc()
			logging.Warn().Err(err).Str("event_type", env.EventType).Msg("dropping undecodable event")
		}
		return nil
	}

	metrics.EventsRouted.WithLabelValues(env.EventType).Inc()
	return r.Dispatch(ev)
}

// Dispatch reconciles one typed event into its domain store and returns
// the effects to run. Stale updates reconcile to nothing and produce no
// effects.
func (r *Router) Dispatch(ev Event) []jobs.Effect {
	switch e := ev.(type) {
	case *MediaScanEvent:
		rec, applied := r.stores.Scans.ApplyUpdate(e.Update())
		if applied && rec.Status == jobs.StatusCompleted {
			return []jobs.Effect{jobs.RefreshMediaItems{LibraryID: string(e.LibraryID)}}
		}

	case *M3URefreshEvent:
		rec, applied := r.stores.Playlists.ApplyUpdate(e.Update())
		if applied && rec.Status == jobs.StatusCompleted {
			return []jobs.Effect{jobs.RefreshChannels{PlaylistID: string(e.PlaylistID)}}
		}

	case *EPGRefreshEvent:
		rec, applied := r.stores.EPG.ApplyUpdate(e.Update())
		if applied && rec.Status == jobs.StatusCompleted {
			return []jobs.Effect{jobs.RefreshGuide{SourceID: string(e.SourceID)}}
		}

	case *ComskipStatusEvent:
		// Self-sufficient payload: the store is the source of truth, no
		// dependent re-fetch.
		r.stores.Comskip.ApplyUpdate(e.Update())

	case *BulkCreateEvent:
		rec, applied := r.stores.Bulk.ApplyUpdate(e.Update())
		if applied && rec.Status == jobs.StatusCompleted {
			// Bulk creation lands new channels across playlists.
			return []jobs.Effect{jobs.RefreshChannels{}}
		}

	case *RecordingUpdatedEvent:
		// Notification only: nothing to reconcile locally.
		return []jobs.Effect{jobs.RefreshRecordings{}}

	default:
		metrics.EventsUnknown.Inc()
		logging.Error().Str("event_type", ev.EventType()).Msg("event type decoded but not dispatched")
	}
	return nil
}
