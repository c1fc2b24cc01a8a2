// Package transport issues authenticated requests to the agent. It attaches
// the bearer credential, adopts rotated credentials from the response and
// forces a logout on 401. It has no business logic beyond that.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
	"github.com/smart-daily/dailychat/pkg/tracing"
)

// NewTokenHeader carries a rotated credential on any response.
const NewTokenHeader = "X-New-Token"

var (
	// ErrUnauthorized is returned after a 401 forced a logout.
	ErrUnauthorized = errors.New("unauthorized: signed out")

	// ErrTransport wraps network and timeout failures.
	ErrTransport = errors.New("transport failure")
)

// Client sends requests to the agent.
type Client struct {
	baseURL string
	http    *http.Client
	auth    auth.Context
	timeout time.Duration
	logger  *logger.Logger
	tracer  trace.Tracer
}

// New creates a transport client. timeout bounds non-streaming calls made
// through DoJSON; streaming calls are bounded by the caller's context only.
func New(baseURL string, authCtx auth.Context, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		auth:    authCtx,
		timeout: timeout,
		logger:  logger.OrNop(log).Named("transport"),
		tracer:  tracing.Tracer("dailychat/transport"),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Auth returns the authentication context the client uses.
func (c *Client) Auth() auth.Context {
	return c.auth
}

// Do sends an authenticated request. The caller owns the returned body.
// Non-2xx responses other than 401 are returned as-is.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	return c.do(ctx, method, path, body, contentType, true)
}

// DoAnonymous sends a request without a credential; a 401 does not log out.
func (c *Client) DoAnonymous(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	return c.do(ctx, method, path, body, contentType, false)
}

// DoJSON sends in as JSON and returns the response with its body fully
// read, bounded by the client timeout.
func (c *Client) DoJSON(ctx context.Context, method, path string, in interface{}) (*http.Response, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.Do(ctx, method, path, body, "application/json")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", ErrTransport, path, err)
	}
	return resp, data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, authenticated bool) (*http.Response, error) {
	route := RouteLabel(path)
	ctx, span := c.tracer.Start(ctx, method+" "+route)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authenticated {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordClientRequest(method, route, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}

	metrics.RecordClientRequest(method, route, strconv.Itoa(resp.StatusCode))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if authenticated && resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		span.SetStatus(codes.Error, "unauthorized")
		c.logger.Warn("credential rejected, signing out", zap.String("path", path))
		c.auth.Logout()
		return nil, ErrUnauthorized
	}

	if token := resp.Header.Get(NewTokenHeader); token != "" && authenticated {
		c.logger.Debug("credential rotated")
		c.auth.Rotate(token)
	}

	return resp, nil
}

// RouteLabel replaces numeric path segments so metric labels stay bounded.
func RouteLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
