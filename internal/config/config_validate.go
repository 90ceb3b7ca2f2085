// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for malformed or out-of-range values.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("environment must be development or production, got %q", c.Environment)
	}

	if err := c.Realtime.validate(); err != nil {
		return fmt.Errorf("realtime: %w", err)
	}
	if err := c.Polling.validate(); err != nil {
		return fmt.Errorf("polling: %w", err)
	}
	if err := c.API.validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

func (r *RealtimeConfig) validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", r.MaxAttempts)
	}
	if r.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive, got %s", r.InitialBackoff)
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %g", r.BackoffMultiplier)
	}
	if r.MaxBackoff < r.InitialBackoff {
		return fmt.Errorf("max_backoff %s must be >= initial_backoff %s", r.MaxBackoff, r.InitialBackoff)
	}
	if r.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive, got %s", r.HandshakeTimeout)
	}
	if r.DevPort < 0 || r.DevPort > 65535 {
		return fmt.Errorf("dev_port out of range: %d", r.DevPort)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path must start with /, got %q", r.Path)
	}
	return nil
}

func (p *PollingConfig) validate() error {
	if p.ShortInterval <= 0 || p.MediumInterval <= 0 || p.LongInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if p.ShortInterval > p.MediumInterval || p.MediumInterval > p.LongInterval {
		return fmt.Errorf("poll intervals must be ordered short <= medium <= long")
	}
	if p.MaxQuiet <= 0 {
		return fmt.Errorf("max_quiet must be positive, got %s", p.MaxQuiet)
	}
	return nil
}

func (a *APIConfig) validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url has no host")
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", a.Timeout)
	}
	if a.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be non-negative, got %d", a.RetryAttempts)
	}
	return nil
}
