// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package metrics provides Prometheus instrumentation for the sync core:
// push-channel connection health, event routing, reconciliation outcomes,
// poller cadence, and the REST circuit breaker.
//
// Collectors are registered via promauto at package load; the embedding
// application exposes them on its own /metrics endpoint.
package metrics
