// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
	"github.com/adunn/switchboard/internal/metrics"
)

// State is the connection state machine position. Transitions:
//
//	Disconnected -> Connecting              (Serve starts)
//	Connecting   -> Open                    (dial succeeded)
//	Connecting   -> Reconnecting            (dial failed, attempts remain)
//	Open         -> Reconnecting            (transport closed)
//	Reconnecting -> Connecting              (backoff delay elapsed)
//	Reconnecting -> Failed                  (attempts exhausted)
//	Failed       -> Connecting              (manual Retry)
//	any          -> Disconnected            (Serve stopped)
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send when the channel is not Open.
var ErrNotConnected = errors.New("push channel not connected")

// Conn is the subset of the websocket connection the manager uses.
// Abstracted so tests can drive the state machine with an in-memory pipe.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes one transport connection.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// EndpointFunc returns the websocket URL for one connect attempt. It is
// called before every dial, so a rotated auth token or changed backend
// address is picked up on reconnect without restarting the manager.
type EndpointFunc func(ctx context.Context) (string, error)

// Manager owns the push-channel connection lifecycle: dial, read, route,
// reconnect with bounded exponential backoff, give up after MaxAttempts,
// resume on manual Retry.
//
// It runs as a supervised service via Serve; the supervisor restarts it if
// the loop itself ever returns unexpectedly.
type Manager struct {
	cfg      config.RealtimeConfig
	endpoint EndpointFunc
	router   *Router
	effects  jobs.EffectRunner
	backoff  BackoffPolicy
	dial     DialFunc

	mu         sync.Mutex
	state      State
	attempt    int
	hadOpen    bool
	generation int
	conn       Conn
	lastFrame  []byte
	listeners  []func(old, new State)

	retryCh chan struct{}
}

// NewManager creates a manager. effects may be nil; routed effects are then
// discarded (useful for read-only consumers and tests).
func NewManager(cfg config.RealtimeConfig, endpoint EndpointFunc, router *Router, effects jobs.EffectRunner) *Manager {
	m := &Manager{
		cfg:      cfg,
		endpoint: endpoint,
		router:   router,
		effects:  effects,
		backoff: BackoffPolicy{
			Initial:    cfg.InitialBackoff,
			Multiplier: cfg.BackoffMultiplier,
			Max:        cfg.MaxBackoff,
		},
		retryCh: make(chan struct{}, 1),
	}
	m.dial = m.dialWebSocket
	return m
}

// SetDial replaces the transport dialer. Test use only.
func (m *Manager) SetDial(d DialFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dial = d
}

// State returns the current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the channel is Open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// LastFrame returns a copy of the most recent inbound frame, for
// diagnostics. Nil when nothing has arrived yet.
func (m *Manager) LastFrame() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastFrame == nil {
		return nil
	}
	return append([]byte(nil), m.lastFrame...)
}

// OnStateChange registers a listener called on every transition. Listeners
// run on the manager goroutine and must not block. Register before Serve.
func (m *Manager) OnStateChange(fn func(old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Retry resumes connecting from the Failed state. A no-op in any other
// state; repeated calls coalesce.
func (m *Manager) Retry() {
	select {
	case m.retryCh <- struct{}{}:
	default:
	}
}

// Send marshals v and writes it to the channel. Best effort: returns
// ErrNotConnected when the channel is not Open, and the caller is expected
// to treat failures as advisory.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Serve runs the connection loop until ctx is cancelled. Implements
// suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	defer m.setState(StateDisconnected)

	for {
		m.setState(StateConnecting)
		err := m.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.mu.Lock()
		m.attempt++
		attempt := m.attempt
		hadOpen := m.hadOpen
		m.mu.Unlock()

		if attempt > m.cfg.MaxAttempts {
			metrics.ConnectionFailuresTotal.Inc()
			m.setState(StateFailed)
			logging.Error().
				Err(err).
				Int("attempts", attempt-1).
				Msg("push channel gave up; waiting for manual retry")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.retryCh:
				m.mu.Lock()
				m.attempt = 0
				m.mu.Unlock()
				logging.Info().Msg("push channel retry requested")
				continue
			}
		}

		delay := m.backoff.Delay(attempt - 1)
		m.setState(StateReconnecting)
		metrics.ReconnectsTotal.Inc()

		// The very first failure often just means the backend is still
		// starting; keep it out of the warning stream.
		logEvent := logging.Warn
		if !hadOpen && attempt == 1 {
			logEvent = logging.Debug
		}
		logEvent().Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("push channel reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runConnection performs one dial and reads frames until the transport
// closes. Returns the terminating error; never returns nil.
func (m *Manager) runConnection(ctx context.Context) error {
	url, err := m.endpoint(ctx)
	if err != nil {
		return fmt.Errorf("resolve push endpoint: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	conn, err := m.dial(dialCtx, url)
	cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.conn = conn
	m.attempt = 0
	m.hadOpen = true
	m.mu.Unlock()
	m.setState(StateOpen)
	logging.Info().Msg("push channel connected")

	// Unblock the reader on cancellation by closing the transport.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.detach(gen, conn)
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.detach(gen, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("push channel read: %w", err)
		}
		m.handleFrame(ctx, raw)
	}
}

// detach closes the transport and, if this generation is still current,
// clears the live connection. A stale generation's close is a no-op on
// manager state, so at most one reader ever feeds the router. Close errors
// are swallowed: the transport is being discarded either way.
func (m *Manager) detach(gen int, conn Conn) {
	m.mu.Lock()
	if m.generation == gen && m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

// handleFrame routes one inbound frame and runs any resulting effects.
// Effect failures are advisory: the poller fallback re-fetches on its own
// cadence.
func (m *Manager) handleFrame(ctx context.Context, raw []byte) {
	m.mu.Lock()
	m.lastFrame = append(m.lastFrame[:0], raw...)
	m.mu.Unlock()

	for _, eff := range m.router.Route(raw) {
		if m.effects == nil {
			continue
		}
		if err := m.effects.Run(ctx, eff); err != nil {
			logging.Warn().Err(err).Type("effect", eff).Msg("dependent refresh failed")
		}
	}
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	listeners := m.listeners
	m.mu.Unlock()

	metrics.SetConnectionState(float64(next))
	logging.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("push channel state change")
	for _, fn := range listeners {
		fn(prev, next)
	}
}

// dialWebSocket is the production dialer.
func (m *Manager) dialWebSocket(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  m.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}
