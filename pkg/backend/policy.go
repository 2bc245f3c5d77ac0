// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/resilience"
	"github.com/jllopis/kairos-console/pkg/telemetry"
)

// breakerGauge maps breaker states to the console.circuitbreaker.state
// gauge values.
var breakerGauge = map[resilience.CircuitBreakerState]int64{
	resilience.StateOpen:     0,
	resilience.StateHalfOpen: 1,
	resilience.StateClosed:   2,
}

// PolicyFromConfig builds the call policy described by cfg. Breaker
// transitions are logged and recorded on metrics.
func PolicyFromConfig(cfg config.BackendConfig, metrics *telemetry.QueryMetrics, logger *slog.Logger) *resilience.Policy {
	if logger == nil {
		logger = slog.Default()
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry = retry.WithMaxAttempts(cfg.RetryAttempts)
	}

	var breaker *resilience.CircuitBreaker
	if cfg.BreakerThreshold > 0 {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "backend",
			FailureThreshold: cfg.BreakerThreshold,
			Timeout:          cfg.BreakerTimeout(),
			OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
				metrics.RecordBreakerState(context.Background(), name, breakerGauge[to])
			},
		})
	}
	return resilience.NewPolicy(retry, breaker, cfg.Timeout())
}

// NewFromConfig creates a client for cfg with its call policy installed.
func NewFromConfig(cfg config.BackendConfig, metrics *telemetry.QueryMetrics, logger *slog.Logger) *Client {
	return New(cfg.BaseURL,
		WithHTTPClient(&http.Client{}),
		WithHeaders(cfg.Headers),
		WithPolicy(PolicyFromConfig(cfg, metrics, logger)),
		WithMetrics(metrics),
		WithLogger(logger),
	)
}
