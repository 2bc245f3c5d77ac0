// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package health reports the health of the console's components: the query
// backend behind its circuit breaker and the widgets of a live dashboard.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jllopis/kairos-console/pkg/resilience"
)

// Status represents the health state of a component.
type Status string

const (
	// Healthy indicates the component is fully operational.
	Healthy Status = "HEALTHY"

	// Degraded indicates the component works with reduced capacity, such as
	// a dashboard with some failed widgets.
	Degraded Status = "DEGRADED"

	// Unhealthy indicates the component is not operational.
	Unhealthy Status = "UNHEALTHY"
)

// Result is the outcome of one check.
type Result struct {
	Status    Status    `json:"status"`
	Component string    `json:"component"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

// Checker checks the health of a component.
type Checker interface {
	Check(ctx context.Context) Result
}

// Func adapts a function to Checker. A zero LastCheck is stamped with the
// current time.
type Func func(ctx context.Context) Result

func (f Func) Check(ctx context.Context) Result {
	r := f(ctx)
	if r.LastCheck.IsZero() {
		r.LastCheck = time.Now()
	}
	return r
}

// Registry runs the registered checkers.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds or replaces the checker for name.
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Check runs the checker registered for name.
func (r *Registry) Check(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	c, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("checker not registered: %s", name)
	}
	res := c.Check(ctx)
	res.Component = name
	return res, nil
}

// CheckAll runs every checker, ordered by name, and returns the overall
// status: unhealthy if any is unhealthy, else degraded if any is degraded.
func (r *Registry) CheckAll(ctx context.Context) ([]Result, Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	overall := Healthy
	results := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := r.Check(ctx, name)
		if err != nil {
			continue
		}
		results = append(results, res)
		switch res.Status {
		case Unhealthy:
			overall = Unhealthy
		case Degraded:
			if overall == Healthy {
				overall = Degraded
			}
		}
	}
	return results, overall
}

// Breaker reports an open circuit as unhealthy and a half-open one as
// degraded. A nil breaker is always healthy.
func Breaker(b *resilience.CircuitBreaker) Checker {
	return Func(func(context.Context) Result {
		if b == nil {
			return Result{Status: Healthy, Message: "no circuit breaker"}
		}
		switch st := b.State(); st {
		case resilience.StateOpen:
			return Result{Status: Unhealthy, Message: "circuit open"}
		case resilience.StateHalfOpen:
			return Result{Status: Degraded, Message: "circuit half-open"}
		default:
			return Result{Status: Healthy, Message: "circuit " + string(st)}
		}
	})
}
