// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// Policy composes a per-attempt timeout, retries and a circuit breaker.
// The breaker wraps each attempt so an open circuit stops the retry loop.
type Policy struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
}

// NewPolicy creates a policy from its parts. A nil breaker disables it.
func NewPolicy(retry RetryConfig, breaker *CircuitBreaker, timeout time.Duration) *Policy {
	return &Policy{Retry: retry, Breaker: breaker, Timeout: timeout}
}

// Do runs fn under the policy.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}
	return p.Retry.Do(ctx, func(ctx context.Context) error {
		attempt := func(ctx context.Context) error {
			return p.withTimeout(ctx, fn)
		}
		if p.Breaker != nil {
			return p.Breaker.Call(ctx, attempt)
		}
		return attempt(ctx)
	})
}

func (p *Policy) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(actx)
	if err != nil && ctx.Err() == nil && stderrors.Is(actx.Err(), context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", p.Timeout.String()).
			WithRecoverable(true)
	}
	return err
}

// Execute runs fn under p and returns its value.
func Execute[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}
