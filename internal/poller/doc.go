// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package poller implements the polling fallback that keeps domain stores
// converging when the push channel is degraded or disabled.
//
// Each poller owns one domain: it fetches the backend's job listing,
// merges it into the domain store, and derives its own next delay from
// what it just fetched — short while anything runs, medium while anything
// waits, long when idle. Two pollers over the same store never influence
// each other's cadence.
package poller
