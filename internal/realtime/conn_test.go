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
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
)

// fakeConn is an in-memory transport for driving the manager.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(frame string) { c.frames <- []byte(frame) }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// scriptDialer hands out fake connections, optionally refusing some calls.
type scriptDialer struct {
	mu    sync.Mutex
	calls int
	urls  []string
	conns []*fakeConn

	// refuse decides per call (1-based) whether the dial fails.
	refuse func(call int) bool
}

func (d *scriptDialer) dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.urls = append(d.urls, url)
	if d.refuse != nil && d.refuse(d.calls) {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *scriptDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *scriptDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingRunner struct {
	mu      sync.Mutex
	effects []jobs.Effect
}

func (r *recordingRunner) Run(_ context.Context, eff jobs.Effect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, eff)
	return nil
}

func (r *recordingRunner) all() []jobs.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Effect(nil), r.effects...)
}

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		Enabled:           true,
		Path:              "/ws/",
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxBackoff:        5 * time.Millisecond,
		HandshakeTimeout:  time.Second,
	}
}

func staticEndpoint(url string) EndpointFunc {
	return func(context.Context) (string, error) { return url, nil }
}

func stateRecorder(m *Manager) <-chan State {
	ch := make(chan State, 64)
	m.OnStateChange(func(_, next State) {
		select {
		case ch <- next:
		default:
		}
	})
	return ch
}

func waitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startManager(t *testing.T, m *Manager) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not stop")
		}
	}
}

func TestManagerConnectsAndRoutesFrames(t *testing.T) {
	reg := jobs.NewRegistry()
	d := &scriptDialer{}
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(reg), nil)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateOpen)

	conn := d.conn(0)
	conn.push(`{"type":"connection_established"}`)
	conn.push(`{"type":"job_update","data":{"type":"media_scan","scan_id":"s-1","library_id":"lib-1","status":"in_progress"}}`)

	waitFor(t, func() bool {
		_, ok := reg.Scans.Get("lib-1", "s-1")
		return ok
	}, "routed frame never reached the scans store")

	if !m.IsConnected() {
		t.Error("IsConnected() = false while Open")
	}
	if m.LastFrame() == nil {
		t.Error("LastFrame() = nil after inbound frames")
	}
}

func TestManagerReconnectsAfterTransportDrop(t *testing.T) {
	d := &scriptDialer{}
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(jobs.NewRegistry()), nil)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateOpen)

	// Backend drops the connection.
	d.conn(0).Close()
	waitState(t, states, StateReconnecting)
	waitState(t, states, StateOpen)

	if d.callCount() < 2 {
		t.Errorf("dial calls = %d, want at least 2", d.callCount())
	}

	// A successful open resets the attempt budget: a second drop must
	// reconnect again rather than counting toward Failed.
	d.conn(1).Close()
	waitState(t, states, StateOpen)
	if m.State() == StateFailed {
		t.Error("manager reached Failed despite successful opens in between")
	}
}

func TestManagerFailsAfterMaxAttemptsThenManualRetry(t *testing.T) {
	var allow sync.Map
	d := &scriptDialer{refuse: func(int) bool {
		_, ok := allow.Load("open")
		return !ok
	}}
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(jobs.NewRegistry()), nil)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateFailed)

	// Failed is sticky: no dials happen while waiting for manual retry.
	calls := d.callCount()
	time.Sleep(20 * time.Millisecond)
	if d.callCount() != calls {
		t.Errorf("dial calls advanced from %d to %d while Failed", calls, d.callCount())
	}

	allow.Store("open", true)
	m.Retry()
	waitState(t, states, StateOpen)
}

func TestManagerResolvesEndpointPerAttempt(t *testing.T) {
	var mu sync.Mutex
	resolved := 0
	endpoint := func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		resolved++
		return fmt.Sprintf("ws://backend/ws/?token=t%d", resolved), nil
	}

	d := &scriptDialer{refuse: func(call int) bool { return call == 1 }}
	m := NewManager(testRealtimeConfig(), endpoint, NewRouter(jobs.NewRegistry()), nil)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateOpen)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urls) < 2 {
		t.Fatalf("dial urls = %v, want one per attempt", d.urls)
	}
	if d.urls[0] == d.urls[1] {
		t.Errorf("endpoint not re-resolved between attempts: %q", d.urls[0])
	}
}

func TestManagerRunsEffectsFromRoutedEvents(t *testing.T) {
	runner := &recordingRunner{}
	d := &scriptDialer{}
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(jobs.NewRegistry()), runner)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateOpen)

	d.conn(0).push(`{"type":"job_update","data":{"type":"media_scan","scan_id":"s-1","library_id":"lib-4","status":"completed"}}`)

	waitFor(t, func() bool { return len(runner.all()) == 1 }, "completed scan never triggered its refresh effect")
	eff, ok := runner.all()[0].(jobs.RefreshMediaItems)
	if !ok {
		t.Fatalf("effect = %T, want RefreshMediaItems", runner.all()[0])
	}
	if eff.LibraryID != "lib-4" {
		t.Errorf("LibraryID = %q, want lib-4", eff.LibraryID)
	}
}

func TestManagerSendRequiresOpenChannel(t *testing.T) {
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(jobs.NewRegistry()), nil)
	if err := m.Send(map[string]string{"type": "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() before connect = %v, want ErrNotConnected", err)
	}

	d := &scriptDialer{}
	m.SetDial(d.dial)
	states := stateRecorder(m)
	stop := startManager(t, m)
	defer stop()
	waitState(t, states, StateOpen)

	if err := m.Send(map[string]string{"type": "ping"}); err != nil {
		t.Errorf("Send() while Open = %v", err)
	}
	conn := d.conn(0)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.sent) != 1 {
		t.Errorf("sent frames = %d, want 1", len(conn.sent))
	}
}

func TestManagerStopsCleanly(t *testing.T) {
	d := &scriptDialer{}
	m := NewManager(testRealtimeConfig(), staticEndpoint("ws://backend/ws/"), NewRouter(jobs.NewRegistry()), nil)
	m.SetDial(d.dial)
	states := stateRecorder(m)

	stop := startManager(t, m)
	waitState(t, states, StateOpen)
	stop()

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after stop = %s, want disconnected", got)
	}
}
