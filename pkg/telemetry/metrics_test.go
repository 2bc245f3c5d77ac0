// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kerrors "github.com/jllopis/kairos-console/pkg/errors"
)

func TestNewQueryMetrics(t *testing.T) {
	m, err := NewQueryMetrics()
	if err != nil {
		t.Fatalf("failed to create query metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil QueryMetrics")
	}
}

func TestRecordQuery(t *testing.T) {
	m, _ := NewQueryMetrics()
	ctx := context.Background()

	m.RecordQuery(ctx, "jvm-metrics", "timeseries", 12*time.Millisecond, nil)
	m.RecordQuery(ctx, "jvm-metrics", "timeseries", time.Second,
		kerrors.New(kerrors.CodeBackendUnavailable, "down", nil).WithRecoverable(true))
	m.RecordQuery(ctx, "sql-metrics", "list", time.Millisecond, errors.New("plain"))

	var nilMetrics *QueryMetrics
	nilMetrics.RecordQuery(ctx, "jvm-metrics", "timeseries", time.Millisecond, nil)
	nilMetrics.RecordWidgetState(ctx, "jvm", "Rendered")
	nilMetrics.RecordBreakerState(ctx, "backend", 2)
}

func TestConcurrentMetrics(t *testing.T) {
	m, _ := NewQueryMetrics()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				m.RecordQuery(ctx, "ds", "list", time.Duration(j)*time.Millisecond, nil)
				m.RecordWidgetState(ctx, "jvm", "Loading")
				m.RecordBreakerState(ctx, "backend", int64(i%3))
			}
		}(i)
	}
	wg.Wait()
}
