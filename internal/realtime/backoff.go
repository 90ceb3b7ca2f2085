// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package realtime

import (
	"math"
	"time"
)

// BackoffPolicy computes the reconnect delay for a given attempt count.
// Deterministic and side-effect free; no jitter (a known simplification:
// every client reconnecting after a backend restart backs off in lockstep).
type BackoffPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoffPolicy returns the production policy: 1s initial delay,
// growing 1.5x per attempt, capped at 30s.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Initial:    1000 * time.Millisecond,
		Multiplier: 1.5,
		Max:        30 * time.Second,
	}
}

// Delay returns min(Initial * Multiplier^attempt, Max).
// Negative attempts are treated as 0.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.Max) || math.IsInf(d, 1) {
		return p.Max
	}
	return time.Duration(d)
}
