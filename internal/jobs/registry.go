// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package jobs

// Domain names for the per-domain stores.
const (
	DomainScans     = "scans"
	DomainPlaylists = "playlists"
	DomainEPG       = "epg"
	DomainComskip   = "comskip"
	DomainBulk      = "bulk"
)

// Registry bundles the per-domain stores for one session. It is constructed
// at session start and torn down at logout; consumers receive it by
// injection, never through package-level state.
type Registry struct {
	Scans     *Store // library scan jobs, scoped by library id
	Playlists *Store // M3U playlist refresh jobs, scoped by playlist id
	EPG       *Store // EPG refresh jobs, scoped by source id
	Comskip   *Store // commercial detection jobs, scoped by recording id
	Bulk      *Store // bulk channel-creation jobs
}

// NewRegistry creates a registry with one empty store per job domain.
func NewRegistry() *Registry {
	return &Registry{
		Scans:     NewStore(DomainScans),
		Playlists: NewStore(DomainPlaylists),
		EPG:       NewStore(DomainEPG),
		Comskip:   NewStore(DomainComskip),
		Bulk:      NewStore(DomainBulk),
	}
}

// All returns every store, for teardown and diagnostics.
func (r *Registry) All() []*Store {
	return []*Store{r.Scans, r.Playlists, r.EPG, r.Comskip, r.Bulk}
}

// Reset clears every store. Used at logout so a later session never sees
// stale job state.
func (r *Registry) Reset() {
	for _, s := range r.All() {
		s.Purge(func(JobRecord) bool { return true })
	}
}
