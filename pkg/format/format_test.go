// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestFormatters(t *testing.T) {
	r := NewRegistry(WithLocation(time.UTC))
	tests := []struct {
		tag      string
		value    float64
		expected string
	}{
		{BinaryByte, 512, "512 B"},
		{BinaryByte, 1536, "1.50 KiB"},
		{BinaryByte, 5 * 1024 * 1024 * 1024, "5.00 GiB"},
		{CompactNumber, 999, "999"},
		{CompactNumber, 1234, "1.23K"},
		{CompactNumber, 2500000, "2.50M"},
		{CompactNumber, -1234, "-1.23K"},
		{CompactNumber, 3e15, "3.00P"},
		{Percentage, 12.345, "12.35%"},
		{Nanosecond, 500, "500ns"},
		{Nanosecond, 1500000, "1.50ms"},
		{Nanosecond, 999.999, "1μs"},
		{Millisecond, 59999.999, "1min"},
		{Microsecond, 2500, "2.50ms"},
		{Millisecond, 250, "250ms"},
		{Millisecond, 90000, "1.50min"},
		{Millisecond, 7200000, "2h"},
		{ByteRate, 2048, "2.00 KiB/s"},
		{Rate, 1500, "1.50K/s"},
		{DateTime, 1704067200000, "2024-01-01 00:00:00"},
		{ShortDateTime, 1704070800000, "01-01 01:00:00"},
		{TimeDuration, 45000, "45s"},
		{TimeDuration, 3 * 60 * 1000, "3Min"},
		{TimeDuration, 90061000, "1Day 1Hour 1Min"},
		{TimeDuration, 2 * 24 * 3600 * 1000, "2Day"},
		{TimeDuration, 0, "0s"},
		{"unknown_tag", 42.5, "42.5"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := r.Get(tt.tag)(tt.value); got != tt.expected {
				t.Errorf("%s(%v): expected %q, got %q", tt.tag, tt.value, tt.expected, got)
			}
		})
	}
}

func TestTimeDiff(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return now }))
	then := now.Add(-3 * time.Minute).UnixMilli()
	if got := r.Get(TimeDiff)(float64(then)); got != "3 minutes ago" {
		t.Errorf("unexpected time diff %q", got)
	}
}

func TestValue(t *testing.T) {
	r := NewRegistry()
	if got := r.Value(BinaryByte, 2048); got != "2.00 KiB" {
		t.Errorf("int value: got %q", got)
	}
	if got := r.Value(CompactNumber, json.Number("1000")); got != "1.00K" {
		t.Errorf("json number: got %q", got)
	}
	if got := r.Value(BinaryByte, "checkout"); got != "checkout" {
		t.Errorf("strings pass through: got %q", got)
	}
	if got := r.Value(Percentage, nil); got != "" {
		t.Errorf("nil renders empty: got %q", got)
	}
	if r.Has("nope") || !r.Has(Rate) {
		t.Errorf("unexpected Has result")
	}
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = Get(BinaryByte)(float64(i * j * 1024))
				_ = Value(Nanosecond, i*j)
			}
		}(i)
	}
	wg.Wait()
}
