// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package supervisor builds suture supervision trees with the project's
// standard failure policy and zerolog-backed event hook.
package supervisor

import (
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/adunn/switchboard/internal/logging"
)

// Config holds supervisor failure policy.
type Config struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown of each service.
	ShutdownTimeout time.Duration
}

// DefaultConfig matches suture's built-in defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// New creates a named supervisor whose events land in the zerolog stream.
func New(name string, cfg Config) *suture.Supervisor {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return suture.New(name, suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}
