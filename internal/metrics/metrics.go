// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Push-channel connection metrics

	// ConnectionState tracks the connection state machine:
	// 0=disconnected, 1=connecting, 2=open, 3=reconnecting, 4=failed.
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Current push-channel connection state (0=disconnected, 1=connecting, 2=open, 3=reconnecting, 4=failed)",
		},
	)

	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Total number of push-channel reconnect attempts",
		},
	)

	ConnectionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_connection_failures_total",
			Help: "Total number of terminal connection failures (max attempts exhausted)",
		},
	)

	// Event routing metrics

	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_routed_total",
			Help: "Total number of events routed, by event type",
		},
		[]string{"event_type"},
	)

	EventsUnknown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_events_unknown_total",
			Help: "Total number of events dropped for an unknown event type",
		},
	)

	ParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_parse_errors_total",
			Help: "Total number of inbound messages dropped as unparseable",
		},
	)

	// Reconciliation metrics

	ReconcileApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_reconcile_applied_total",
			Help: "Total number of updates merged into a domain store, by domain",
		},
		[]string{"domain"},
	)

	ReconcileDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_reconcile_dropped_total",
			Help: "Total number of updates dropped during reconciliation, by domain and reason",
		},
		[]string{"domain", "reason"},
	)

	// Adaptive poller metrics

	PollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Total number of poll fetches, by domain and mode (foreground/background)",
		},
		[]string{"domain", "mode"},
	)

	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_errors_total",
			Help: "Total number of failed poll fetches, by domain",
		},
		[]string{"domain"},
	)

	DependentRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_dependent_refreshes_total",
			Help: "Total number of dependent re-fetches triggered, by collection kind",
		},
		[]string{"kind"},
	)

	// Circuit breaker metrics (REST job API)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker, by outcome",
		},
		[]string{"name", "outcome"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures seen by the circuit breaker",
		},
		[]string{"name"},
	)
)

// SetConnectionState records the state machine position on the gauge.
func SetConnectionState(state float64) {
	ConnectionState.Set(state)
}
