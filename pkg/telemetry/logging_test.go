// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfigureSlogInjectsTraceIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "refresh")
	Component(logger, "dashboard").InfoContext(ctx, "widget rendered", "widget", "w1")
	span.End()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if record["component"] != "dashboard" || record["widget"] != "w1" {
		t.Errorf("missing attributes in %v", record)
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace id, got %v", record["trace_id"])
	}
	if record["span_id"] == nil {
		t.Errorf("expected span id")
	}
}

func TestWithLogAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "info", "json"))

	ctx := WithLogAttrs(context.Background(), slog.String("dashboard", "jvm"))
	ctx = WithLogAttrs(ctx, slog.Int64("refresh", 3))
	logger.InfoContext(ctx, "dashboard.widget.failed", slog.String("dashboard", "override"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if record["dashboard"] != "override" {
		t.Errorf("record attribute must win, got %v", record["dashboard"])
	}
	if record["refresh"] != float64(3) {
		t.Errorf("expected refresh from context, got %v", record["refresh"])
	}
	if got := len(LogAttrs(context.Background())); got != 0 {
		t.Errorf("expected no attributes on a bare context, got %d", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
