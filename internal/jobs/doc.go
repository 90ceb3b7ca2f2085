// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package jobs implements the reconciliation stores for long-running
// background jobs (library scans, playlist refreshes, EPG refreshes,
// commercial detection, bulk channel creation).
//
// Each domain store keeps an indexed collection of JobRecord values, keyed
// by id and mirrored under two scope keys: the record's own scope (library,
// playlist, EPG source) and the aggregate "all" scope. All mutation goes
// through ApplyUpdate, Upsert, Remove, and Purge; merges are idempotent and
// tolerate duplicate and out-of-order delivery.
//
// The merge itself is the pure Reduce function, so reconciliation is
// testable without a store, a connection, or a clock.
package jobs
