// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	ce := New(CodeBackendUnavailable, "backend unreachable", cause)

	if ce.Code != CodeBackendUnavailable {
		t.Errorf("expected CodeBackendUnavailable, got %v", ce.Code)
	}
	if ce.Message != "backend unreachable" {
		t.Errorf("unexpected message %q", ce.Message)
	}
	if !errors.Is(ce, cause) {
		t.Errorf("expected errors.Is to reach the cause")
	}
}

func TestChaining(t *testing.T) {
	ce := New(CodeQueryFailed, "query failed", nil).
		WithContext("widget", "chart-1").
		WithAttribute("data_source", "jvm-metrics").
		WithRecoverable(true)

	if ce.Context["widget"] != "chart-1" {
		t.Errorf("expected widget context")
	}
	if ce.Attributes["data_source"] != "jvm-metrics" {
		t.Errorf("expected data_source attribute")
	}
	if !ce.Recoverable || ce.RecoverableString() != "true" {
		t.Errorf("expected recoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		ce       *ConsoleError
		expected string
	}{
		{
			name:     "with cause",
			ce:       New(CodeTimeout, "query timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] query timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			ce:       New(CodeNotFound, "dashboard not found", nil),
			expected: "[NOT_FOUND] dashboard not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ce.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsConsoleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "console error", err: New(CodeQueryFailed, "failed", nil), expected: CodeQueryFailed},
		{name: "wrapped console error", err: fmt.Errorf("outer: %w", New(CodeNotFound, "missing", nil)), expected: CodeNotFound},
		{name: "generic error", err: errors.New("boom"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := AsConsoleError(tt.err)
			if tt.expected == "" {
				if ce != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if ce == nil || ce.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, ce)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	inner := New(CodeTimeout, "slow", nil)
	outer := New(CodeQueryFailed, "query failed", inner)
	if !HasCode(outer, CodeTimeout) {
		t.Errorf("expected nested timeout code")
	}
	if !HasCode(outer, CodeQueryFailed) {
		t.Errorf("expected outer code")
	}
	if HasCode(outer, CodeNotFound) {
		t.Errorf("unexpected not found code")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Errorf("plain errors carry no code")
	}
}

func TestMarshalJSON(t *testing.T) {
	ce := New(CodeQueryFailed, "query failed", errors.New("502 bad gateway")).
		WithContext("widget", "chart-2").
		WithRecoverable(true)

	data, err := json.Marshal(ce)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["code"] != "QUERY_FAILED" {
		t.Errorf("expected code QUERY_FAILED, got %v", result["code"])
	}
	if result["cause"] != "502 bad gateway" {
		t.Errorf("expected cause, got %v", result["cause"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeInvalidDescriptor, 400},
		{CodePreconditionUnmet, 409},
		{CodeTimeout, 504},
		{CodeQueryFailed, 502},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test", nil).StatusCode; got != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, got)
			}
		})
	}
}
