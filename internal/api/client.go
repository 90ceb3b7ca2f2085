// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/adunn/switchboard/internal/config"
	"github.com/adunn/switchboard/internal/jobs"
	"github.com/adunn/switchboard/internal/logging"
)

// maxResponseSize bounds how much of any response body is read.
const maxResponseSize = 8 * 1024 * 1024

// maxErrorBodySize bounds how much of an error body lands in the error text.
const maxErrorBodySize = 4 * 1024

// TokenSource resolves the auth token for a request. Implementations may
// rotate tokens between calls; the client resolves per request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token. Empty means no auth.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the backend's REST job endpoints.
//
// Read calls (ListJobs, Fetch*) retry transient failures — network errors,
// HTTP 429 and 5xx — with exponential backoff. Mutating calls run exactly
// once. Everything passes through one shared circuit breaker so a dead
// backend stops costing a full timeout per call.
type Client struct {
	cfg     config.APIConfig
	httpc   *http.Client
	tokens  TokenSource
	breaker *breaker
}

// NewClient creates a client for the configured backend. tokens may be nil
// for unauthenticated backends.
func NewClient(cfg config.APIConfig, tokens TokenSource) *Client {
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		tokens:  tokens,
		breaker: newBreaker("job-api"),
	}
}

// ListJobs fetches the backend's job listing for one domain.
func (c *Client) ListJobs(ctx context.Context, domain string) ([]jobs.JobRecord, error) {
	var resp jobListResponse
	if err := c.get(ctx, "/api/jobs/"+url.PathEscape(domain)+"/", &resp); err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", domain, err)
	}
	out := make([]jobs.JobRecord, 0, len(resp.Results))
	for _, w := range resp.Results {
		out = append(out, w.record())
	}
	return out, nil
}

// TriggerScan starts a library scan and returns the created job.
func (c *Client) TriggerScan(ctx context.Context, libraryID string) (jobs.JobRecord, error) {
	var w wireJob
	err := c.post(ctx, "/api/libraries/"+url.PathEscape(libraryID)+"/scan/", nil, &w)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("trigger scan for library %s: %w", libraryID, err)
	}
	return w.record(), nil
}

// RefreshPlaylist starts an M3U playlist refresh and returns the created job.
func (c *Client) RefreshPlaylist(ctx context.Context, playlistID string) (jobs.JobRecord, error) {
	var w wireJob
	err := c.post(ctx, "/api/playlists/"+url.PathEscape(playlistID)+"/refresh/", nil, &w)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("refresh playlist %s: %w", playlistID, err)
	}
	return w.record(), nil
}

// RefreshGuide starts an EPG source refresh and returns the created job.
func (c *Client) RefreshGuide(ctx context.Context, sourceID string) (jobs.JobRecord, error) {
	var w wireJob
	err := c.post(ctx, "/api/epg/"+url.PathEscape(sourceID)+"/refresh/", nil, &w)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("refresh epg source %s: %w", sourceID, err)
	}
	return w.record(), nil
}

// RunComskip queues commercial detection for one recording.
func (c *Client) RunComskip(ctx context.Context, recordingID string) (jobs.JobRecord, error) {
	var w wireJob
	err := c.post(ctx, "/api/recordings/"+url.PathEscape(recordingID)+"/comskip/", nil, &w)
	if err != nil {
		return jobs.JobRecord{}, fmt.Errorf("run comskip for recording %s: %w", recordingID, err)
	}
	return w.record(), nil
}

// CancelJob asks the backend to cancel a job. The cancellation itself
// arrives later as a push event or poll result.
func (c *Client) CancelJob(ctx context.Context, domain, id string) error {
	path := "/api/jobs/" + url.PathEscape(domain) + "/" + url.PathEscape(id) + "/cancel/"
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("cancel %s job %s: %w", domain, id, err)
	}
	return nil
}

// DeleteJob removes a job record server-side.
func (c *Client) DeleteJob(ctx context.Context, domain, id string) error {
	path := "/api/jobs/" + url.PathEscape(domain) + "/" + url.PathEscape(id) + "/"
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, false); err != nil {
		return fmt.Errorf("delete %s job %s: %w", domain, id, err)
	}
	return nil
}

// PurgeJobs removes all finished jobs in a domain server-side and returns
// how many were removed.
func (c *Client) PurgeJobs(ctx context.Context, domain string) (int, error) {
	var resp purgeResponse
	if err := c.post(ctx, "/api/jobs/"+url.PathEscape(domain)+"/purge/", nil, &resp); err != nil {
		return 0, fmt.Errorf("purge %s jobs: %w", domain, err)
	}
	return resp.Removed, nil
}

// FetchMediaItems re-fetches a library's media item listing. Empty
// libraryID fetches across all libraries. Returns the item count.
func (c *Client) FetchMediaItems(ctx context.Context, libraryID string) (int, error) {
	path := "/api/media/"
	if libraryID != "" {
		path += "?library=" + url.QueryEscape(libraryID)
	}
	var resp collectionResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("fetch media items: %w", err)
	}
	return resp.Count, nil
}

// FetchChannels re-fetches the channel listing, optionally scoped to one
// playlist. Returns the channel count.
func (c *Client) FetchChannels(ctx context.Context, playlistID string) (int, error) {
	path := "/api/channels/"
	if playlistID != "" {
		path += "?playlist=" + url.QueryEscape(playlistID)
	}
	var resp collectionResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("fetch channels: %w", err)
	}
	return resp.Count, nil
}

// FetchGuide re-fetches programme data, optionally scoped to one source.
func (c *Client) FetchGuide(ctx context.Context, sourceID string) (int, error) {
	path := "/api/epg/programs/"
	if sourceID != "" {
		path += "?source=" + url.QueryEscape(sourceID)
	}
	var resp collectionResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("fetch guide: %w", err)
	}
	return resp.Count, nil
}

// FetchRecordings re-fetches the recordings collection.
func (c *Client) FetchRecordings(ctx context.Context) (int, error) {
	var resp collectionResponse
	if err := c.get(ctx, "/api/recordings/", &resp); err != nil {
		return 0, fmt.Errorf("fetch recordings: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, false)
}

// do runs one request through the circuit breaker, optionally retrying
// transient failures, and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any, retry bool) error {
	// JoinPath would escape an embedded query string; split it off first.
	rawPath, query := path, ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		rawPath, query = path[:i], path[i:]
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, rawPath)
	if err != nil {
		return fmt.Errorf("join %q and %q: %w", c.cfg.BaseURL, path, err)
	}
	endpoint += query

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	attempt := func() ([]byte, error) {
		data, err := c.breaker.execute(func() ([]byte, error) {
			return c.roundTrip(ctx, method, endpoint, payload)
		})
		if err != nil && rejected(err) {
			// Retrying into an open circuit is pointless.
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	var data []byte
	if retry && c.cfg.RetryAttempts > 1 {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = c.cfg.RetryInitialDelay
		data, err = backoff.Retry(ctx, attempt,
			backoff.WithBackOff(bo),
			backoff.WithMaxTries(uint(c.cfg.RetryAttempts)),
		)
	} else {
		data, err = attempt()
	}
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// roundTrip performs a single HTTP exchange. Transient failures return
// plain errors; responses that will not improve with retry come back
// wrapped in backoff.Permanent.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, rd)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	cid := logging.CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = logging.GenerateCorrelationID()
	}
	req.Header.Set("X-Request-ID", cid)

	if c.tokens != nil {
		tok, err := c.tokens.Token(reqCtx)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("resolve token: %w", err))
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, endpoint, err)
	}

	logging.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("correlation_id", cid).
		Msg("api request")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &StatusError{Code: resp.StatusCode, Body: errorBody(data)}
	default:
		return nil, backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: errorBody(data)})
	}
}

func errorBody(data []byte) string {
	if len(data) > maxErrorBodySize {
		return string(data[:maxErrorBodySize]) + "... (truncated)"
	}
	return string(data)
}
