// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package api is the REST client for the backend's job endpoints: listing
// jobs for the adaptive pollers, triggering and cancelling jobs, and the
// dependent re-fetches that reconciliation requests as effects.
//
// All calls go through a circuit breaker; read-only calls additionally
// retry transient failures with exponential backoff. Mutating calls are
// never retried.
package api
