// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adunn/switchboard/internal/jobs"
)

func TestRunnerExecutesEachEffectKind(t *testing.T) {
	var media, channels, guide, recordings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/media/":
			media.Add(1)
		case "/api/channels/":
			channels.Add(1)
		case "/api/epg/programs/":
			guide.Add(1)
		case "/api/recordings/":
			recordings.Add(1)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer srv.Close()

	r := NewRunner(testClient(srv.URL), 0)
	ctx := context.Background()
	effects := []jobs.Effect{
		jobs.RefreshMediaItems{LibraryID: "lib-1"},
		jobs.RefreshChannels{PlaylistID: "pl-1"},
		jobs.RefreshGuide{SourceID: "src-1"},
		jobs.RefreshRecordings{},
	}
	for _, eff := range effects {
		if err := r.Run(ctx, eff); err != nil {
			t.Errorf("Run(%T) error = %v", eff, err)
		}
	}

	for name, n := range map[string]*atomic.Int32{
		"media": &media, "channels": &channels, "guide": &guide, "recordings": &recordings,
	} {
		if n.Load() != 1 {
			t.Errorf("%s fetches = %d, want 1", name, n.Load())
		}
	}
}

func TestRunnerCollapsesBurstsPerKind(t *testing.T) {
	var media atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		media.Add(1)
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer srv.Close()

	r := NewRunner(testClient(srv.URL), time.Minute)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := r.Run(ctx, jobs.RefreshMediaItems{LibraryID: "lib-1"}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if got := media.Load(); got != 1 {
		t.Errorf("fetches = %d, want a 10-event burst collapsed to 1", got)
	}
}

func TestRunnerSkipsOverlappingRefreshOfSameKind(t *testing.T) {
	var total, hits atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if total.Add(1) == 1 {
			close(entered)
			<-release
		}
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer srv.Close()

	// No interval limit: only the in-flight guard can dedupe here.
	r := NewRunner(testClient(srv.URL), 0)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, jobs.RefreshGuide{SourceID: "src-1"}) }()
	<-entered

	// Second trigger while the first request is still outstanding.
	if err := r.Run(ctx, jobs.RefreshGuide{SourceID: "src-1"}); err != nil {
		t.Errorf("overlapping Run() error = %v, want skip", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("requests while one in flight = %d, want 1", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run() error = %v", err)
	}

	// A different kind is not blocked by guide's in-flight request.
	hits.Store(0)
	if err := r.Run(ctx, jobs.RefreshRecordings{}); err != nil {
		t.Errorf("Run(recordings) error = %v", err)
	}
	if hits.Load() != 1 {
		t.Error("independent kind did not fetch")
	}
}

func TestRunnerHonorsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request made despite cancelled context")
	}))
	defer srv.Close()

	r := NewRunner(testClient(srv.URL), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx, jobs.RefreshRecordings{}); err == nil {
		t.Error("Run() = nil error with cancelled context")
	}
}
