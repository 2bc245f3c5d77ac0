// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// FallbackFunc produces a value after the primary operation failed.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// WithFallback executes fn and, on error, returns the fallback result.
func WithFallback[T any](ctx context.Context, fn func(ctx context.Context) (T, error), fallback FallbackFunc[T]) (T, error) {
	v, err := fn(ctx)
	if err == nil || fallback == nil {
		return v, err
	}
	return fallback(ctx, err)
}

// LastGood remembers the last successful value of an operation so it can be
// served while the operation fails.
type LastGood[T any] struct {
	mu    sync.RWMutex
	value T
	ok    bool
}

// Store records a good value.
func (l *LastGood[T]) Store(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
	l.ok = true
}

// Load returns the last good value.
func (l *LastGood[T]) Load() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.ok
}

// Do runs fn, storing its result on success and falling back to the last
// good value on failure.
func (l *LastGood[T]) Do(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return WithFallback(ctx, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err == nil {
			l.Store(v)
		}
		return v, err
	}, func(_ context.Context, primaryErr error) (T, error) {
		if v, ok := l.Load(); ok {
			return v, nil
		}
		var zero T
		return zero, errors.New(errors.CodeBackendUnavailable, "no cached value available", primaryErr).
			WithContext("fallback", "last_good")
	})
}
