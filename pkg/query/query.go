// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package query defines the backend query protocol and builds queries from
// chart descriptors and the live filter state.
package query

import (
	"time"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/filter"
)

// Interval is the time window of a query.
type Interval struct {
	StartISO8601    string `json:"startISO8601"`
	EndISO8601      string `json:"endISO8601"`
	MinBucketLength int    `json:"minBucketLength,omitempty"`
	BucketCount     int    `json:"bucketCount,omitempty"`
}

// Limit pages a list query.
type Limit struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Query is one backend request.
type Query struct {
	Type             descriptor.QueryType `json:"-"`
	DataSource       string               `json:"dataSource"`
	Fields           []descriptor.Field   `json:"fields"`
	GroupBy          []string             `json:"groupBy,omitempty"`
	Filters          []filter.Filter      `json:"filters,omitempty"`
	FilterExpression string               `json:"filterExpression,omitempty"`
	Interval         Interval             `json:"interval"`
	OrderBy          *descriptor.OrderBy  `json:"orderBy,omitempty"`
	Limit            *Limit               `json:"limit,omitempty"`
}

// FieldNames returns the output names of the requested fields.
func (q *Query) FieldNames() []string {
	names := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		names = append(names, f.DisplayName())
	}
	return names
}

// SeriesData is one returned series. The last tag names the metric; the
// preceding tags form the group key.
type SeriesData struct {
	Tags   []string  `json:"tags"`
	Values []float64 `json:"values"`
}

// Metric returns the metric name carried by the last tag.
func (s SeriesData) Metric() string {
	if len(s.Tags) == 0 {
		return ""
	}
	return s.Tags[len(s.Tags)-1]
}

// Group returns the group-by tags.
func (s SeriesData) Group() []string {
	if len(s.Tags) == 0 {
		return nil
	}
	return s.Tags[:len(s.Tags)-1]
}

// TimeSeriesResponse is the backend answer to a time-series query.
// Timestamps and the bucket interval are in milliseconds.
type TimeSeriesResponse struct {
	StartTimestamp int64        `json:"startTimestamp"`
	EndTimestamp   int64        `json:"endTimestamp"`
	Interval       int64        `json:"interval"`
	Data           []SeriesData `json:"data"`
}

// BucketCount returns (end - start) / interval.
func (r *TimeSeriesResponse) BucketCount() int {
	if r.Interval <= 0 || r.EndTimestamp <= r.StartTimestamp {
		return 0
	}
	return int((r.EndTimestamp - r.StartTimestamp) / r.Interval)
}

// Start returns the first bucket timestamp.
func (r *TimeSeriesResponse) Start() time.Time {
	return time.UnixMilli(r.StartTimestamp)
}

// End returns the end of the last bucket.
func (r *TimeSeriesResponse) End() time.Time {
	return time.UnixMilli(r.EndTimestamp)
}

// BucketLength returns the bucket width.
func (r *TimeSeriesResponse) BucketLength() time.Duration {
	return time.Duration(r.Interval) * time.Millisecond
}

// RowsResponse is one page of a list or group-by query.
type RowsResponse struct {
	Total int              `json:"total"`
	Rows  []map[string]any `json:"rows"`
}
