// Package peer is the HTTP client services use to call each other. Calls
// carry the caller identity and request id; error responses come back as
// *resilience.StatusError so the breaker can classify them.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4 << 10

// Client talks to a single internal service.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	propagator *trust.Propagator
}

// NewClient constructs a client for service at baseURL. The http.Client
// timeout is only a backstop; the breaker timeout is the effective bound.
func NewClient(service, baseURL string, propagator *trust.Propagator) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		propagator: propagator,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Service returns the target service name.
func (c *Client) Service() string {
	return c.service
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, id trust.RequestIdentity, out any) error {
	return c.do(ctx, http.MethodGet, path, id, nil, out)
}

// PostJSON sends in as JSON to path and decodes the response into out. A nil
// out discards the body.
func (c *Client) PostJSON(ctx context.Context, path string, id trust.RequestIdentity, in, out any) error {
	return c.do(ctx, http.MethodPost, path, id, in, out)
}

// Ping checks the target's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", trust.RequestIdentity{}, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, id trust.RequestIdentity, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("peer %s: encode request: %w", c.service, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("peer %s: build request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	if err := c.propagator.Forward(req.Header, id, c.service); err != nil {
		return fmt.Errorf("peer %s: %w", c.service, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("peer %s: decode response: %w", c.service, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload httpx.ErrorBody
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	return &resilience.StatusError{Code: resp.StatusCode, Message: message}
}
