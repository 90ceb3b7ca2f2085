// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package api

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// breaker wraps the job API with a circuit breaker so a dead backend stops
// costing a full timeout per request. The pollers keep ticking while the
// circuit is open; their fetches fail fast and the stores simply go stale
// until the backend recovers.
//
// The breaker uses real time for its interval and timeout windows. Tests
// exercise the client underneath it, not the breaker's clock.
type breaker struct {
	cb   *gobreaker.CircuitBreaker[[]byte]
	name string
}

// newBreaker creates a named breaker: opens at a 60% failure rate over at
// least 10 requests, allows 3 probes in half-open, recovers after 1 minute.
func newBreaker(name string) *breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Uint32("requests", counts.Requests).
					Msg("circuit breaker opening")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := breakerStateString(from), breakerStateString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &breaker{cb: cb, name: name}
}

// execute runs fn under the breaker and records the outcome.
func (b *breaker) execute(fn func() ([]byte, error)) ([]byte, error) {
	data, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).
				Set(float64(b.cb.Counts().ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	return data, nil
}

// rejected reports whether err is a breaker rejection (open circuit or
// half-open probe limit) rather than a request failure.
func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
