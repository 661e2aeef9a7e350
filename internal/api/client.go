// Package api provides the remote API client the sync coordinator replays
// queued mutations against. The surface is a generic request call; the
// endpoint catalogue and payload shapes are owned by the server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
)

// Client is the remote surface the core depends on. The sync coordinator
// is the only component that calls Request; the connectivity monitor's
// active probe uses Health.
type Client interface {
	// Request performs one API call. A nil error means the server accepted
	// the mutation; the raw response body is returned for id extraction.
	Request(ctx context.Context, endpoint, method string, body json.RawMessage) (json.RawMessage, error)

	// Health probes the API health endpoint.
	Health(ctx context.Context) error
}

// HealthEndpoint is the path probed by Health.
const HealthEndpoint = "/api/health"

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the given base URL. A nil httpClient
// falls back to a default with a 30s timeout.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Request performs one API call against baseURL+endpoint.
func (c *HTTPClient) Request(ctx context.Context, endpoint, method string, body json.RawMessage) (json.RawMessage, error) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unsupported method %q", method))
	}

	target, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "invalid endpoint", err)
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrSyncTimeout, "request timed out", err)
		}
		return nil, errors.Wrap(errors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrNetwork,
			fmt.Sprintf("%s %s returned %d", method, endpoint, resp.StatusCode))
	}
	return data, nil
}

// Health probes the API health endpoint with a plain GET.
func (c *HTTPClient) Health(ctx context.Context) error {
	target, err := url.JoinPath(c.baseURL, HealthEndpoint)
	if err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid health endpoint", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrProbeFailed, "health probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrProbeFailed,
			fmt.Sprintf("health probe returned %d", resp.StatusCode))
	}
	return nil
}

// ServerID extracts the server-assigned record id from a response body.
// Returns empty when the body has no id field.
func ServerID(body json.RawMessage) string {
	if len(body) == 0 {
		return ""
	}
	var parsed struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	switch v := parsed.ID.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
