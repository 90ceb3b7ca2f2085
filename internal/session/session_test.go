// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adunn/switchboard/internal/api"
	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/realtime"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Environment: "development",
		Realtime: config.RealtimeConfig{
			Enabled:           false,
			Path:              "/ws/",
			DevPort:           8001,
			MaxAttempts:       5,
			InitialBackoff:    time.Millisecond,
			BackoffMultiplier: 1.5,
			MaxBackoff:        5 * time.Millisecond,
			HandshakeTimeout:  time.Second,
		},
		Polling: config.PollingConfig{
			ShortInterval:               time.Millisecond,
			MediumInterval:              time.Millisecond,
			LongInterval:                time.Millisecond,
			MaxQuiet:                    time.Minute,
			DependentRefreshMinInterval: time.Minute,
		},
		API: config.APIConfig{
			BaseURL:           baseURL,
			Timeout:           2 * time.Second,
			RetryAttempts:     1,
			RetryInitialDelay: time.Millisecond,
		},
	}
}

func TestEndpointDevelopmentUsesFixedPort(t *testing.T) {
	cfg := testConfig("http://backend.local:9191")
	s := New(cfg, api.StaticToken("tok-abc"))

	got, err := s.resolveEndpoint(api.StaticToken("tok-abc"))(context.Background())
	if err != nil {
		t.Fatalf("resolveEndpoint() error = %v", err)
	}
	if got != "ws://backend.local:8001/ws/?token=tok-abc" {
		t.Errorf("endpoint = %q, want fixed dev port with token query", got)
	}
}

func TestEndpointProductionSharesAPIPort(t *testing.T) {
	cfg := testConfig("http://backend.local:9191")
	cfg.Environment = "production"
	s := New(cfg, nil)

	got, err := s.resolveEndpoint(nil)(context.Background())
	if err != nil {
		t.Fatalf("resolveEndpoint() error = %v", err)
	}
	if got != "ws://backend.local:9191/ws/" {
		t.Errorf("endpoint = %q, want the api host and port", got)
	}
}

func TestEndpointTLSAndHostOverride(t *testing.T) {
	cfg := testConfig("https://backend.local")
	cfg.Environment = "production"
	cfg.Realtime.Host = "push.backend.local"
	s := New(cfg, nil)

	got, err := s.resolveEndpoint(nil)(context.Background())
	if err != nil {
		t.Fatalf("resolveEndpoint() error = %v", err)
	}
	if got != "wss://push.backend.local/ws/" {
		t.Errorf("endpoint = %q, want wss on the override host", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/jobs/"):
			_, _ = w.Write([]byte(`{"count":1,"results":[{"id":"j-1","scope":"lib-1","status":"in_progress"}]}`))
		// Forward progress on the first poll triggers the dependent
		// collection re-fetches.
		case r.URL.Path == "/api/media/", r.URL.Path == "/api/channels/", r.URL.Path == "/api/epg/programs/":
			refreshes.Add(1)
			_, _ = w.Write([]byte(`{"count":3}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Pollers converge the stores from the listing.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Registry().Scans.Len(jobs.ScopeAll) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.Registry().Scans.Len(jobs.ScopeAll) == 0 {
		t.Fatal("scans store never converged from polling")
	}

	stats := s.PollerStats()
	if len(stats) != 5 {
		t.Errorf("poller stats domains = %d, want 5", len(stats))
	}

	// The new in_progress record is progress, so the domains with a
	// dependent refresh re-fetch their collections.
	for time.Now().Before(deadline) && refreshes.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if refreshes.Load() == 0 {
		t.Error("forward progress never triggered a dependent collection re-fetch")
	}

	s.Stop()
	if got := s.Registry().Scans.Len(jobs.ScopeAll); got != 0 {
		t.Errorf("store len after Stop = %d, want 0 (stores cleared at teardown)", got)
	}

	// Idempotent stop, and no restart after stop.
	s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() after Stop = nil error, want failure")
	}
}

func TestSessionDoubleStartFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"results":[]}`))
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() = nil error, want failure")
	}
}

func TestSessionConnectionStateWithRealtimeDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"results":[]}`))
	}))
	defer srv.Close()

	s := New(testConfig(srv.URL), nil)
	if got := s.ConnectionState(); got != realtime.StateDisconnected {
		t.Errorf("ConnectionState() = %s, want disconnected before start", got)
	}
}
