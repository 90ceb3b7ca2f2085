// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package session

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/adunn/switchboard/internal/api"
	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/poller"
	"github.com/adunn/switchboard/internal/realtime"
	"github.com/adunn/switchboard/internal/supervisor"
)

// Session is one authenticated sync session against one backend.
//
// Lifecycle: New wires the components, Start launches the supervision
// tree, Stop tears it down and clears every store. A Session is not
// reusable after Stop; build a new one for the next login.
type Session struct {
	cfg      *config.Config
	registry *jobs.Registry
	client   *api.Client
	runner   *api.Runner
	manager  *realtime.Manager
	pollers  map[string]*poller.Poller
	sup      *suture.Supervisor

	mu      sync.Mutex
	cancel  context.CancelFunc
	errCh   <-chan error
	started bool
	stopped bool
}

// New assembles a session. tokens authenticates both the REST client and
// the push channel; it is re-resolved on every connect and request, so
// token rotation needs no session restart.
func New(cfg *config.Config, tokens api.TokenSource) *Session {
	registry := jobs.NewRegistry()
	client := api.NewClient(cfg.API, tokens)
	runner := api.NewRunner(client, cfg.Polling.DependentRefreshMinInterval)
	router := realtime.NewRouter(registry)

	s := &Session{
		cfg:      cfg,
		registry: registry,
		client:   client,
		runner:   runner,
		pollers:  make(map[string]*poller.Poller),
	}
	s.manager = realtime.NewManager(cfg.Realtime, s.resolveEndpoint(tokens), router, runner)

	listJobs := func(domain string) poller.FetchFunc {
		return func(ctx context.Context) ([]jobs.JobRecord, error) {
			return client.ListJobs(ctx, domain)
		}
	}
	for domain, refresh := range map[string]jobs.Effect{
		jobs.DomainScans:     jobs.RefreshMediaItems{},
		jobs.DomainPlaylists: jobs.RefreshChannels{},
		jobs.DomainEPG:       jobs.RefreshGuide{},
		jobs.DomainComskip:   nil,
		jobs.DomainBulk:      jobs.RefreshChannels{},
	} {
		store := s.storeFor(domain)
		s.pollers[domain] = poller.New(cfg.Polling, store, listJobs(domain), runner, refresh)
	}

	s.sup = supervisor.New("switchboard-session", supervisor.DefaultConfig())
	if cfg.Realtime.Enabled {
		s.sup.Add(s.manager)
	}
	for _, p := range s.pollers {
		s.sup.Add(p)
	}
	return s
}

// Start launches the supervision tree. Safe to call once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session already started")
	}
	if s.stopped {
		return fmt.Errorf("session already stopped")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.errCh = s.sup.ServeBackground(runCtx)
	s.started = true
	logging.Info().
		Bool("realtime", s.cfg.Realtime.Enabled).
		Int("pollers", len(s.pollers)).
		Msg("session started")
	return nil
}

// Stop tears the session down: cancels every service, waits for the tree
// to drain, and clears every store so a later session never sees stale
// job state. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, errCh, started := s.cancel, s.errCh, s.started
	s.mu.Unlock()

	if started {
		cancel()
		select {
		case <-errCh:
		case <-time.After(15 * time.Second):
			logging.Error().Msg("session supervisor did not drain in time")
		}
	}
	s.registry.Reset()
	logging.Info().Msg("session stopped")
}

// Registry returns the session's domain stores.
func (s *Session) Registry() *jobs.Registry { return s.registry }

// Client returns the session's REST client.
func (s *Session) Client() *api.Client { return s.client }

// ConnectionState returns the push channel's state machine position.
func (s *Session) ConnectionState() realtime.State { return s.manager.State() }

// OnConnectionStateChange registers a push-channel state listener.
// Register before Start.
func (s *Session) OnConnectionStateChange(fn func(old, new realtime.State)) {
	s.manager.OnStateChange(fn)
}

// RetryConnection resumes connecting after the push channel gave up.
func (s *Session) RetryConnection() { s.manager.Retry() }

// PollerStats returns a per-domain snapshot of poller activity.
func (s *Session) PollerStats() map[string]poller.Stats {
	out := make(map[string]poller.Stats, len(s.pollers))
	for domain, p := range s.pollers {
		out[domain] = p.Stats()
	}
	return out
}

func (s *Session) storeFor(domain string) *jobs.Store {
	switch domain {
	case jobs.DomainScans:
		return s.registry.Scans
	case jobs.DomainPlaylists:
		return s.registry.Playlists
	case jobs.DomainEPG:
		return s.registry.EPG
	case jobs.DomainComskip:
		return s.registry.Comskip
	default:
		return s.registry.Bulk
	}
}

// resolveEndpoint builds the websocket URL for one connect attempt.
//
// In development the push channel listens on a fixed alternate port beside
// the dev server; in production it shares the API host and port. The auth
// token rides as a query parameter because browsers (and some proxies)
// strip headers from websocket upgrades.
func (s *Session) resolveEndpoint(tokens api.TokenSource) realtime.EndpointFunc {
	return func(ctx context.Context) (string, error) {
		base, err := url.Parse(s.cfg.API.BaseURL)
		if err != nil {
			return "", fmt.Errorf("parse api base url %q: %w", s.cfg.API.BaseURL, err)
		}

		host := base.Hostname()
		if s.cfg.Realtime.Host != "" {
			host = s.cfg.Realtime.Host
		}

		scheme := "ws"
		if s.cfg.Realtime.TLS || base.Scheme == "https" {
			scheme = "wss"
		}

		var hostport string
		if s.cfg.Environment == "development" {
			hostport = net.JoinHostPort(host, strconv.Itoa(s.cfg.Realtime.DevPort))
		} else if port := base.Port(); port != "" {
			hostport = net.JoinHostPort(host, port)
		} else {
			hostport = host
		}

		ws := url.URL{Scheme: scheme, Host: hostport, Path: s.cfg.Realtime.Path}
		if tokens != nil {
			tok, err := tokens.Token(ctx)
			if err != nil {
				return "", fmt.Errorf("resolve token: %w", err)
			}
			if tok != "" {
				q := ws.Query()
				q.Set("token", tok)
				ws.RawQuery = q.Encode()
			}
		}
		return ws.String(), nil
	}
}
