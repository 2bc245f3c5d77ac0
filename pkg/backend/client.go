// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend is the HTTP client of the query, schema and dashboard
// storage endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/resilience"
	"github.com/jllopis/kairos-console/pkg/schema"
	"github.com/jllopis/kairos-console/pkg/telemetry"
)

// Endpoint paths relative to the base URL.
const (
	PathTimeSeries = "/datasource/timeseries"
	PathList       = "/datasource/list"
	PathGroupBy    = "/datasource/groupBy"
	PathSchema     = "/datasource/schema/"
	PathDashboards = "/dashboards"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client talks to the console backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	policy     *resilience.Policy
	metrics    *telemetry.QueryMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHeaders sets default headers for each request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithPolicy runs every call under p. A nil policy disables retries.
func WithPolicy(p *resilience.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithMetrics records query counters and latencies.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tracer:     otel.Tracer("kairos-console/backend"),
		logger:     slog.Default().With("component", "backend"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Breaker returns the circuit breaker of the call policy, if any.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	if c.policy == nil {
		return nil
	}
	return c.policy.Breaker
}

// QueryTimeSeries runs a time-series query.
func (c *Client) QueryTimeSeries(ctx context.Context, q *query.Query) (*query.TimeSeriesResponse, error) {
	var resp query.TimeSeriesResponse
	if err := c.query(ctx, PathTimeSeries, string(descriptor.QueryTimeSeries), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryRows runs a list or group-by query depending on q.Type.
func (c *Client) QueryRows(ctx context.Context, q *query.Query) (*query.RowsResponse, error) {
	path, kind := PathList, descriptor.QueryList
	if q.Type == descriptor.QueryGroupBy {
		path, kind = PathGroupBy, descriptor.QueryGroupBy
	}
	var resp query.RowsResponse
	if err := c.query(ctx, path, string(kind), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) query(ctx context.Context, path, kind string, q *query.Query, out any) error {
	if q == nil {
		return errors.New(errors.CodeInvalidInput, "query is required", nil)
	}
	ctx, span := c.tracer.Start(ctx, "backend.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.QueryAttributes(q.DataSource, kind, q.FieldNames(), q.FilterExpression,
			q.Interval.StartISO8601, q.Interval.EndISO8601, q.Interval.MinBucketLength)...),
	)
	defer span.End()

	start := time.Now()
	err := c.do(ctx, http.MethodPost, path, q, out)
	c.metrics.RecordQuery(ctx, q.DataSource, kind, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.AsConsoleError(err).
			WithContext("data_source", q.DataSource).
			WithContext("query_type", kind)
	}
	return nil
}

// GetSchema fetches the schema of a data source.
func (c *Client) GetSchema(ctx context.Context, dataSource string) (*schema.Schema, error) {
	if dataSource == "" {
		return nil, errors.New(errors.CodeInvalidInput, "data source is required", nil)
	}
	var s schema.Schema
	if err := c.do(ctx, http.MethodGet, PathSchema+url.PathEscape(dataSource), nil, &s); err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = dataSource
	}
	return &s, nil
}

// GetDashboard fetches the raw dashboard document called name.
func (c *Client) GetDashboard(ctx context.Context, name string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, PathDashboards+"/"+url.PathEscape(name), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListDashboards returns the names of the stored dashboards.
func (c *Client) ListDashboards(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, PathDashboards, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// PutDashboard stores a raw dashboard document under name.
func (c *Client) PutDashboard(ctx context.Context, name string, doc []byte) error {
	if !json.Valid(doc) {
		return errors.New(errors.CodeInvalidDescriptor, "dashboard document is not valid JSON", nil).
			WithContext("dashboard", name)
	}
	return c.do(ctx, http.MethodPut, PathDashboards+"/"+url.PathEscape(name), json.RawMessage(doc), nil)
}

// do sends one request under the policy and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "encode request", err)
		}
	}
	endpoint := c.baseURL + path

	return c.policy.Do(ctx, func(ctx context.Context) error {
		ctx, span := c.tracer.Start(ctx, "backend.http "+method,
			trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "build request", err).WithRecoverable(false)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		c.applyHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			span.SetAttributes(telemetry.HTTPAttributes(method, endpoint, 0)...)
			span.RecordError(err)
			if ctx.Err() != nil {
				return errors.New(errors.CodeContextLost, "request canceled", err).
					WithContext("url", endpoint).
					WithRecoverable(false)
			}
			return errors.New(errors.CodeBackendUnavailable, "backend request failed", err).
				WithContext("url", endpoint).
				WithRecoverable(true)
		}
		defer resp.Body.Close()
		span.SetAttributes(telemetry.HTTPAttributes(method, endpoint, resp.StatusCode)...)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			herr := statusError(resp, endpoint)
			span.SetStatus(codes.Error, herr.Error())
			c.logger.DebugContext(ctx, "backend request failed",
				"method", method, "url", endpoint, "status", resp.StatusCode)
			return herr
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.New(errors.CodeQueryFailed, "decode response", err).
				WithContext("url", endpoint).
				WithRecoverable(false)
		}
		return nil
	})
}

func (c *Client) applyHeaders(ctx context.Context, req *http.Request) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// statusError maps a non-2xx response to a console error: 5xx and 429 are
// recoverable, other 4xx are not.
func statusError(resp *http.Response, endpoint string) *errors.ConsoleError {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := backendMessage(payload)
	if msg == "" {
		msg = resp.Status
	}

	var ce *errors.ConsoleError
	switch {
	case resp.StatusCode == http.StatusNotFound:
		ce = errors.New(errors.CodeNotFound, msg, nil).WithRecoverable(false)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		ce = errors.New(errors.CodeBackendUnavailable, msg, nil).WithRecoverable(true)
	default:
		ce = errors.New(errors.CodeQueryFailed, msg, nil).WithRecoverable(false)
	}
	return ce.WithContext("url", endpoint).WithContext("status", resp.StatusCode)
}

// backendMessage extracts {"message": ...} or {"error": ...} from an error
// body, falling back to the trimmed text.
func backendMessage(payload []byte) string {
	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &decoded); err == nil {
		if decoded.Message != "" {
			return decoded.Message
		}
		if decoded.Error != "" {
			return decoded.Error
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
