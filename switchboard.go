// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package switchboard keeps a client's view of an IPTV/DVR backend's
// background jobs converged in real time.
//
// It maintains a persistent websocket push channel with bounded
// exponential reconnect, routes typed job-progress events into per-domain
// reconciliation stores (library scans, M3U playlist refreshes, EPG
// refreshes, commercial detection, bulk channel creation), and falls back
// to adaptive polling when the push channel is degraded. Updates are
// idempotent and ordered: replayed or stale frames never regress a store.
//
// Typical use:
//
//	cfg, err := switchboard.LoadConfig()
//	if err != nil { ... }
//	sess := switchboard.New(cfg, switchboard.StaticToken("..."))
//	if err := sess.Start(ctx); err != nil { ... }
//	defer sess.Stop()
//
//	scans := sess.Registry().Scans.List(switchboard.ScopeAll)
package switchboard

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adunn/switchboard/internal/api"
	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/realtime"
	"github.com/adunn/switchboard/internal/session"
)

// Session is one authenticated sync session. See session.Session.
type Session = session.Session

// Config is the full configuration tree.
type Config = config.Config

// TokenSource resolves auth tokens per request and per connect.
type TokenSource = api.TokenSource

// StaticToken is a TokenSource for a fixed token.
type StaticToken = api.StaticToken

// Registry bundles the per-domain job stores.
type Registry = jobs.Registry

// JobRecord is one background job's reconciled state.
type JobRecord = jobs.JobRecord

// ConnectionState is the push channel's state machine position.
type ConnectionState = realtime.State

// ScopeAll lists every record in a store regardless of scope.
const ScopeAll = jobs.ScopeAll

// Push-channel states, in transition order.
const (
	Disconnected = realtime.StateDisconnected
	Connecting   = realtime.StateConnecting
	Open         = realtime.StateOpen
	Reconnecting = realtime.StateReconnecting
	Failed       = realtime.StateFailed
)

// New assembles a session from a loaded config. tokens may be nil for
// unauthenticated backends.
func New(cfg *Config, tokens TokenSource) *Session {
	return session.New(cfg, tokens)
}

// LoadConfig loads configuration from defaults, the optional config file,
// and environment variables, and validates it.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// InitLogging configures the process-wide logger from config. Embedders
// that run their own zerolog setup can skip this.
func InitLogging(cfg *Config) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
}

// MetricsHandler returns the Prometheus handler for switchboard's
// collectors, for the embedder to mount wherever its metrics live.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
