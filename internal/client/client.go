// Package client is a Go client for the vidguard HTTP API. Besides the plain
// endpoint wrappers it provides Wait, a bounded poll loop that stops at the
// first terminal state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apiv2 "github.com/tphakala/vidguard/internal/api/v2"
	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/httpclient"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

const (
	apiPrefix        = "/api/v2"
	maxResponseBytes = 16 << 20
	defaultTimeout   = 30 * time.Second
)

// GetLogger returns the client package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("client")
}

// Client talks to one vidguard server.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid server URL %q", baseURL).
			Component("client").
			Category(errors.CategoryConfiguration).
			Build()
	}
	c := &Client{
		baseURL: u.String(),
		http:    httpclient.New(httpclient.Config{Timeout: defaultTimeout, UserAgent: "vidguard-cli"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Response   apiv2.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Response.CorrelationID != "" {
		return fmt.Sprintf("server returned %d: %s (correlation id %s)", e.StatusCode, msg, e.Response.CorrelationID)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

// Submit starts an analysis.
func (c *Client) Submit(ctx context.Context, req apiv2.SubmitRequest) (*apiv2.SubmitResponse, error) {
	var resp apiv2.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/analyses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the current job record.
func (c *Client) Status(ctx context.Context, id string) (*moderation.Job, error) {
	var job moderation.Job
	if err := c.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel cancels a job. Cancelling a finished job returns it unchanged.
func (c *Client) Cancel(ctx context.Context, id string) (*moderation.Job, error) {
	var job moderation.Job
	if err := c.do(ctx, http.MethodPost, "/analyses/"+url.PathEscape(id)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Delete removes a finished job.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/analyses/"+url.PathEscape(id), nil, nil)
}

// List returns a page of jobs matching filter.
func (c *Client) List(ctx context.Context, filter datastore.Filter) (*apiv2.ListResponse, error) {
	q := url.Values{}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}
	if filter.Verdict != "" {
		q.Set("verdict", string(filter.Verdict))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp apiv2.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns aggregate decision statistics.
func (c *Client) Stats(ctx context.Context) (*datastore.Stats, error) {
	var stats datastore.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Policy returns the active policy table.
func (c *Client) Policy(ctx context.Context) (*apiv2.PolicyResponse, error) {
	var resp apiv2.PolicyResponse
	if err := c.do(ctx, http.MethodGet, "/policy", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one request and decodes the JSON reply into out. Error replies
// become *APIError wrapped with the category the server reported.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.New(err).Component("client").Category(errors.CategoryValidation).Build()
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return errors.New(err).Component("client").Category(errors.CategoryValidation).Build()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return errors.New(err).
			Component("client").
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("path", path).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.New(err).Component("client").Category(errors.CategoryNetwork).Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Response)
		return errors.New(apiErr).
			Component("client").
			Category(categoryFor(resp.StatusCode, apiErr.Response.Category)).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.New(fmt.Errorf("decoding %s %s response: %w", method, path, err)).
			Component("client").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return nil
}

// categoryFor prefers the category the server reported and falls back to
// the status code.
func categoryFor(status int, reported string) errors.ErrorCategory {
	if reported != "" && reported != string(errors.CategoryGeneric) {
		return errors.ErrorCategory(reported)
	}
	switch status {
	case http.StatusBadRequest:
		return errors.CategoryValidation
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusConflict:
		return errors.CategoryConflict
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return errors.CategoryLimit
	case http.StatusGatewayTimeout:
		return errors.CategoryTimeout
	default:
		return errors.CategoryHTTP
	}
}
