// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/resilience"
)

func jvmQuery() *query.Query {
	return &query.Query{
		Type:       descriptor.QueryTimeSeries,
		DataSource: "jvm-metrics",
		Fields:     []descriptor.Field{{Field: "heapUsed"}},
		Interval: query.Interval{
			StartISO8601:    "2024-01-01T00:00:00Z",
			EndISO8601:      "2024-01-01T01:00:00Z",
			MinBucketLength: 300,
		},
	}
}

func fastPolicy(attempts int) *resilience.Policy {
	retry := resilience.DefaultRetryConfig().WithMaxAttempts(attempts).WithInitialDelay(time.Millisecond)
	return resilience.NewPolicy(retry, nil, 0)
}

func TestQueryTimeSeries(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api"+PathTimeSeries {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Tenant") != "acme" {
			t.Errorf("missing default header")
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		json.NewEncoder(w).Encode(query.TimeSeriesResponse{
			StartTimestamp: 0,
			EndTimestamp:   3_600_000,
			Interval:       300_000,
			Data:           []query.SeriesData{{Tags: []string{"heapUsed"}, Values: make([]float64, 12)}},
		})
	}))
	defer server.Close()

	client := New(server.URL+"/api/", WithHeaders(map[string]string{"X-Tenant": "acme"}))
	resp, err := client.QueryTimeSeries(context.Background(), jvmQuery())
	if err != nil {
		t.Fatalf("QueryTimeSeries: %v", err)
	}
	if resp.BucketCount() != 12 || len(resp.Data) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if body["dataSource"] != "jvm-metrics" {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["type"]; ok {
		t.Errorf("query type travels in the path, not the body")
	}
	interval := body["interval"].(map[string]any)
	if interval["minBucketLength"].(float64) != 300 {
		t.Errorf("unexpected interval %v", interval)
	}
}

func TestQueryRowsPicksEndpoint(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"total": 1, "rows": [{"sql": "select 1"}]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	for _, qt := range []descriptor.QueryType{descriptor.QueryList, descriptor.QueryGroupBy} {
		resp, err := client.QueryRows(context.Background(), &query.Query{Type: qt, DataSource: "sql"})
		if err != nil || resp.Total != 1 {
			t.Fatalf("QueryRows(%s): %v %+v", qt, err, resp)
		}
	}
	if len(paths) != 2 || paths[0] != PathList || paths[1] != PathGroupBy {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status      int
		body        string
		code        errors.ErrorCode
		recoverable bool
		calls       int32
		message     string
	}{
		{http.StatusServiceUnavailable, "", errors.CodeBackendUnavailable, true, 3, "503 Service Unavailable"},
		{http.StatusTooManyRequests, `{"message":"slow down"}`, errors.CodeBackendUnavailable, true, 3, "slow down"},
		{http.StatusBadRequest, `{"error":"unknown field heap"}`, errors.CodeQueryFailed, false, 1, "unknown field heap"},
		{http.StatusNotFound, "", errors.CodeNotFound, false, 1, "404 Not Found"},
	}
	for _, tt := range tests {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		client := New(server.URL, WithPolicy(fastPolicy(3)))
		_, err := client.QueryTimeSeries(context.Background(), jvmQuery())
		server.Close()

		ce := errors.AsConsoleError(err)
		if ce == nil || ce.Code != tt.code || ce.Recoverable != tt.recoverable {
			t.Errorf("status %d: unexpected error %#v", tt.status, err)
			continue
		}
		if ce.Message != tt.message {
			t.Errorf("status %d: message %q, want %q", tt.status, ce.Message, tt.message)
		}
		if ce.Context["data_source"] != "jvm-metrics" {
			t.Errorf("status %d: missing query context", tt.status)
		}
		if calls.Load() != tt.calls {
			t.Errorf("status %d: %d calls, want %d", tt.status, calls.Load(), tt.calls)
		}
	}
}

func TestRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"total": 0, "rows": []}`))
	}))
	defer server.Close()

	client := New(server.URL, WithPolicy(fastPolicy(3)))
	if _, err := client.QueryRows(context.Background(), &query.Query{DataSource: "sql"}); err != nil {
		t.Fatalf("expected the retry to succeed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	policy := PolicyFromConfig(config.BackendConfig{
		RetryAttempts:         1,
		BreakerThreshold:      2,
		BreakerTimeoutSeconds: 60,
	}, nil, nil)
	client := New(server.URL, WithPolicy(policy))

	for range 3 {
		client.QueryTimeSeries(context.Background(), jvmQuery())
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker must stop calls, got %d", calls.Load())
	}
	if policy.Breaker.State() != resilience.StateOpen {
		t.Errorf("expected open breaker, got %s", policy.Breaker.State())
	}
}

func TestTraceContextPropagated(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	prevTP := otel.GetTracerProvider()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	defer otel.SetTextMapPropagator(prev)
	defer otel.SetTracerProvider(prevTP)

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.Write([]byte(`{"name": "jvm-metrics", "dimensionsSpec": [], "metricsSpec": []}`))
	}))
	defer server.Close()

	if _, err := New(server.URL).GetSchema(context.Background(), "jvm-metrics"); err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	if traceparent == "" {
		t.Errorf("expected a traceparent header")
	}
}

func TestSchemaAndDashboards(t *testing.T) {
	stored := map[string][]byte{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathSchema+"{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dimensionsSpec": [{"name": "appName"}, {"name": "instanceName"}], "metricsSpec": [{"name": "heapUsed", "unit": "byte"}]}`))
	})
	mux.HandleFunc("GET "+PathDashboards, func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(stored))
		for name := range stored {
			names = append(names, name)
		}
		json.NewEncoder(w).Encode(names)
	})
	mux.HandleFunc("GET "+PathDashboards+"/{name}", func(w http.ResponseWriter, r *http.Request) {
		doc, ok := stored[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(doc)
	})
	mux.HandleFunc("PUT "+PathDashboards+"/{name}", func(w http.ResponseWriter, r *http.Request) {
		doc, _ := io.ReadAll(r.Body)
		stored[r.PathValue("name")] = doc
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(server.URL)
	ctx := context.Background()

	s, err := client.GetSchema(ctx, "jvm-metrics")
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	if s.Name != "jvm-metrics" || len(s.DimensionsSpec) != 2 {
		t.Errorf("unexpected schema %+v", s)
	}

	if err := client.PutDashboard(ctx, "jvm", []byte(`{"name":"jvm","charts":[]}`)); err != nil {
		t.Fatalf("PutDashboard: %v", err)
	}
	if err := client.PutDashboard(ctx, "bad", []byte(`{`)); !errors.HasCode(err, errors.CodeInvalidDescriptor) {
		t.Errorf("invalid JSON must be rejected locally, got %v", err)
	}
	doc, err := client.GetDashboard(ctx, "jvm")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if d, err := descriptor.Load(doc); err != nil || d.Name != "jvm" {
		t.Errorf("unexpected dashboard %s: %v", doc, err)
	}
	names, err := client.ListDashboards(ctx)
	if err != nil || len(names) != 1 || names[0] != "jvm" {
		t.Errorf("unexpected list %v: %v", names, err)
	}
	if _, err := client.GetDashboard(ctx, "missing"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(server.URL, WithPolicy(fastPolicy(3))).QueryTimeSeries(ctx, jvmQuery())
	if !errors.HasCode(err, errors.CodeContextLost) {
		t.Errorf("expected context lost, got %v", err)
	}
}
