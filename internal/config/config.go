// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package config

import (
	"time"
)

// Config holds all settings for the realtime sync core.
//
// Categories:
//   - Realtime: push-channel endpoint, backoff, and reconnect limits
//   - Polling: adaptive poller cadence
//   - API: REST endpoints the pollers and effect runner call
//   - Logging: log level and output format
type Config struct {
	// Environment selects endpoint derivation: "development" uses the fixed
	// alternate websocket port, "production" uses the API host's own port.
	Environment string `koanf:"environment"`

	Realtime RealtimeConfig `koanf:"realtime"`
	Polling  PollingConfig  `koanf:"polling"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RealtimeConfig holds push-channel connection settings.
//
// Environment Variables:
//   - REALTIME_ENABLED: enable the push channel (default: true)
//   - REALTIME_HOST: websocket host override (default: API host)
//   - REALTIME_DEV_PORT: fixed websocket port in development (default: 8001)
//   - REALTIME_MAX_ATTEMPTS: reconnect attempts before giving up (default: 5)
type RealtimeConfig struct {
	Enabled bool `koanf:"enabled"`

	// Host overrides the websocket host. Empty means: derive from API.BaseURL.
	Host string `koanf:"host"`

	// Path is the websocket endpoint path on the backend.
	Path string `koanf:"path"`

	// DevPort is the fixed alternate websocket port used in development,
	// where the backend's push channel runs beside the dev server.
	DevPort int `koanf:"dev_port"`

	// TLS selects wss:// instead of ws://.
	TLS bool `koanf:"tls"`

	// MaxAttempts bounds consecutive reconnect attempts before the
	// connection is considered Failed and requires a manual retry.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// HandshakeTimeout bounds a single connect attempt. Without it an
	// attempt that neither opens nor errors would hang forever.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// PollingConfig holds adaptive poller cadence settings.
//
// The poller picks its next delay from the aggregate state of the records it
// watches: short while anything runs, medium while anything is queued, long
// when idle.
type PollingConfig struct {
	ShortInterval  time.Duration `koanf:"short_interval"`
	MediumInterval time.Duration `koanf:"medium_interval"`
	LongInterval   time.Duration `koanf:"long_interval"`

	// MaxQuiet is the longest the poller waits before forcing a dependent
	// re-fetch even without observed progress.
	MaxQuiet time.Duration `koanf:"max_quiet"`

	// DependentRefreshMinInterval rate-limits dependent re-fetches so
	// rapid progress events collapse into few requests.
	DependentRefreshMinInterval time.Duration `koanf:"dependent_refresh_min_interval"`
}

// APIConfig holds REST client settings for the job endpoints.
//
// Environment Variables:
//   - API_BASE_URL: backend base URL (e.g. http://localhost:9191)
//   - API_TIMEOUT: per-request timeout (default: 30s)
type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`

	// RetryAttempts and RetryInitialDelay drive transient-failure retry
	// for list/fetch calls. Mutating calls are never retried.
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Realtime: RealtimeConfig{
			Enabled:           true,
			Host:              "",
			Path:              "/ws/",
			DevPort:           8001,
			TLS:               false,
			MaxAttempts:       5,
			InitialBackoff:    1000 * time.Millisecond,
			BackoffMultiplier: 1.5,
			MaxBackoff:        30 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Polling: PollingConfig{
			ShortInterval:               2 * time.Second,
			MediumInterval:              4 * time.Second,
			LongInterval:                8 * time.Second,
			MaxQuiet:                    30 * time.Second,
			DependentRefreshMinInterval: 1 * time.Second,
		},
		API: APIConfig{
			BaseURL:           "http://localhost:9191",
			Timeout:           30 * time.Second,
			RetryAttempts:     3,
			RetryInitialDelay: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
