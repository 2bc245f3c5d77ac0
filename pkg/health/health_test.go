// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"testing"
	"time"

	"github.com/jllopis/kairos-console/pkg/resilience"
)

func static(s Status) Checker {
	return Func(func(context.Context) Result { return Result{Status: s} })
}

func TestFuncStampsLastCheck(t *testing.T) {
	res := static(Healthy).Check(context.Background())
	if res.LastCheck.IsZero() {
		t.Error("expected LastCheck to be set by the wrapper")
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res = Func(func(context.Context) Result { return Result{LastCheck: at} }).Check(context.Background())
	if !res.LastCheck.Equal(at) {
		t.Errorf("explicit LastCheck must be kept, got %s", res.LastCheck)
	}
}

func TestCheckAllOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, Healthy},
		{"all healthy", []Status{Healthy, Healthy}, Healthy},
		{"one degraded", []Status{Healthy, Degraded}, Degraded},
		{"unhealthy wins", []Status{Degraded, Unhealthy, Healthy}, Unhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, s := range tt.statuses {
				r.Register(string(rune('a'+i)), static(s))
			}
			results, overall := r.CheckAll(context.Background())
			if overall != tt.want {
				t.Errorf("overall = %s, want %s", overall, tt.want)
			}
			if len(results) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(results))
			}
			for i, res := range results {
				if res.Component != string(rune('a'+i)) {
					t.Errorf("results must be ordered by name, got %s at %d", res.Component, i)
				}
			}
		})
	}
}

func TestCheckUnknown(t *testing.T) {
	if _, err := NewRegistry().Check(context.Background(), "nope"); err == nil {
		t.Error("expected an error for an unregistered checker")
	}
}

func TestBreaker(t *testing.T) {
	if got := Breaker(nil).Check(context.Background()).Status; got != Healthy {
		t.Errorf("nil breaker must be healthy, got %s", got)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Timeout: time.Minute,
		Now:     func() time.Time { return now },
	})
	c := Breaker(cb)
	if got := c.Check(context.Background()).Status; got != Healthy {
		t.Errorf("closed breaker must be healthy, got %s", got)
	}
	cb.Open()
	if got := c.Check(context.Background()).Status; got != Unhealthy {
		t.Errorf("open breaker must be unhealthy, got %s", got)
	}
	cb.Reset()
	if got := c.Check(context.Background()).Status; got != Healthy {
		t.Errorf("reset breaker must be healthy, got %s", got)
	}
}
