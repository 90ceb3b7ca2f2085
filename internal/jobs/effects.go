// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

import "context"

// Effect names a dependent re-fetch that reconciliation decided is needed
// but deliberately does not execute. Handlers return effects to the caller,
// which chooses when (and whether) to run them. This keeps the merge pure
// and the coupling between reconciliation and network re-fetches explicit.
type Effect interface {
	effect()
}

// RefreshMediaItems signals that a library's media item listing may be
// stale (a scan finished or progressed).
type RefreshMediaItems struct {
	// LibraryID scopes the refresh; empty refreshes all libraries.
	LibraryID string
}

// RefreshChannels signals that a playlist refresh changed the channel set.
type RefreshChannels struct {
	PlaylistID string
}

// RefreshGuide signals that an EPG refresh changed programme data.
type RefreshGuide struct {
	SourceID string
}

// RefreshRecordings signals that recording state changed server-side and
// the recordings collection must be re-fetched; the event itself carries
// no payload to reconcile.
type RefreshRecordings struct{}

func (RefreshMediaItems) effect() {}
func (RefreshChannels) effect()   {}
func (RefreshGuide) effect()      {}
func (RefreshRecordings) effect() {}

// EffectRunner executes effects. The REST client implements it; tests use
// a recording fake.
type EffectRunner interface {
	Run(ctx context.Context, eff Effect) error
}
