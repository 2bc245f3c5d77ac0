// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides a scripted query backend and assertion helpers
// for dashboard tests.
//
// Example usage:
//
//	backend := testing.NewScenarioBackend().
//	    AddError(testing.ForDataSource("broken"), errors.New("boom")).
//	    WithGenerator()
//
//	resp, err := backend.QueryTimeSeries(ctx, q)
package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/schema"
)

// Matcher selects the queries a rule answers.
type Matcher func(q *query.Query) bool

// Any matches every query.
func Any() Matcher {
	return func(*query.Query) bool { return true }
}

// ForDataSource matches queries against dataSource.
func ForDataSource(dataSource string) Matcher {
	return func(q *query.Query) bool { return q.DataSource == dataSource }
}

// ForField matches queries requesting the field named name.
func ForField(name string) Matcher {
	return func(q *query.Query) bool { return slices.Contains(q.FieldNames(), name) }
}

// ScriptedResponse is one rule of a ScenarioBackend.
type ScriptedResponse struct {
	Match      Matcher
	TimeSeries *query.TimeSeriesResponse
	Rows       *query.RowsResponse
	Error      error
	// Delay postpones the answer; canceled contexts end the wait.
	Delay time.Duration
	// Gate blocks the answer until it is closed.
	Gate <-chan struct{}
	// Times limits how often the rule answers. Zero means unlimited.
	Times int

	used int
}

// ScenarioBackend is an in-memory query backend with scripted responses and
// request capture. Rules are tried in the order they were added.
type ScenarioBackend struct {
	mu         sync.Mutex
	rules      []*ScriptedResponse
	requests   []query.Query
	schemas    map[string]*schema.Schema
	defaultErr error
	generate   bool
}

// NewScenarioBackend creates a backend without rules.
func NewScenarioBackend() *ScenarioBackend {
	return &ScenarioBackend{schemas: make(map[string]*schema.Schema)}
}

// AddTimeSeries answers matching time-series queries with resp.
func (b *ScenarioBackend) AddTimeSeries(match Matcher, resp *query.TimeSeriesResponse) *ScenarioBackend {
	return b.AddScriptedResponse(ScriptedResponse{Match: match, TimeSeries: resp})
}

// AddRows answers matching list and group-by queries with resp.
func (b *ScenarioBackend) AddRows(match Matcher, resp *query.RowsResponse) *ScenarioBackend {
	return b.AddScriptedResponse(ScriptedResponse{Match: match, Rows: resp})
}

// AddError fails matching queries with err.
func (b *ScenarioBackend) AddError(match Matcher, err error) *ScenarioBackend {
	return b.AddScriptedResponse(ScriptedResponse{Match: match, Error: err})
}

// AddScriptedResponse adds a fully configured rule.
func (b *ScenarioBackend) AddScriptedResponse(resp ScriptedResponse) *ScenarioBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if resp.Match == nil {
		resp.Match = Any()
	}
	b.rules = append(b.rules, &resp)
	return b
}

// WithSchema registers the schema returned by GetSchema.
func (b *ScenarioBackend) WithSchema(s *schema.Schema) *ScenarioBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemas[s.Name] = s
	return b
}

// WithDefaultError sets the error returned when no rule matches.
func (b *ScenarioBackend) WithDefaultError(err error) *ScenarioBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultErr = err
	return b
}

// WithGenerator answers unmatched time-series queries with one increasing
// series per requested field and unmatched row queries with an empty page.
func (b *ScenarioBackend) WithGenerator() *ScenarioBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generate = true
	return b
}

func (b *ScenarioBackend) QueryTimeSeries(ctx context.Context, q *query.Query) (*query.TimeSeriesResponse, error) {
	rule, err := b.take(q, func(r *ScriptedResponse) bool { return r.TimeSeries != nil || r.Error != nil })
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return Generate(q)
	}
	if err := wait(ctx, rule); err != nil {
		return nil, err
	}
	if rule.Error != nil {
		return nil, rule.Error
	}
	resp := *rule.TimeSeries
	resp.Data = slices.Clone(resp.Data)
	return &resp, nil
}

func (b *ScenarioBackend) QueryRows(ctx context.Context, q *query.Query) (*query.RowsResponse, error) {
	rule, err := b.take(q, func(r *ScriptedResponse) bool { return r.Rows != nil || r.Error != nil })
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return &query.RowsResponse{Rows: []map[string]any{}}, nil
	}
	if err := wait(ctx, rule); err != nil {
		return nil, err
	}
	if rule.Error != nil {
		return nil, rule.Error
	}
	resp := *rule.Rows
	resp.Rows = slices.Clone(resp.Rows)
	return &resp, nil
}

func (b *ScenarioBackend) GetSchema(_ context.Context, dataSource string) (*schema.Schema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.schemas[dataSource]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "unknown data source", nil).
			WithContext("data_source", dataSource)
	}
	return s, nil
}

// take records q and returns the first usable matching rule. A nil rule
// with a nil error means the generator should answer.
func (b *ScenarioBackend) take(q *query.Query, usable func(*ScriptedResponse) bool) (*ScriptedResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, *q)

	for _, r := range b.rules {
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		if !usable(r) || !r.Match(q) {
			continue
		}
		r.used++
		return r, nil
	}
	if b.defaultErr != nil {
		return nil, b.defaultErr
	}
	if b.generate {
		return nil, nil
	}
	return nil, fmt.Errorf("no scripted response for %s (call %d)", q.DataSource, len(b.requests))
}

func wait(ctx context.Context, r *ScriptedResponse) error {
	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Requests returns all captured queries.
func (b *ScenarioBackend) Requests() []query.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

// RequestsFor returns the captured queries against dataSource.
func (b *ScenarioBackend) RequestsFor(dataSource string) []query.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []query.Query
	for _, q := range b.requests {
		if q.DataSource == dataSource {
			out = append(out, q)
		}
	}
	return out
}

// LastRequest returns the most recent query.
func (b *ScenarioBackend) LastRequest() *query.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil
	}
	q := b.requests[len(b.requests)-1]
	return &q
}

// CallCount returns the number of queries received.
func (b *ScenarioBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Reset clears captured queries and rule usage.
func (b *ScenarioBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = b.requests[:0]
	for _, r := range b.rules {
		r.used = 0
	}
}

// Ramp returns n values starting at start and growing by step.
func Ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Series builds one response series. The metric is the last tag.
func Series(metric string, values []float64, group ...string) query.SeriesData {
	return query.SeriesData{Tags: append(slices.Clone(group), metric), Values: values}
}

// TimeSeries builds a response starting at start whose bucket count is the
// length of the longest series.
func TimeSeries(start time.Time, bucket time.Duration, series ...query.SeriesData) *query.TimeSeriesResponse {
	n := 0
	for _, s := range series {
		n = max(n, len(s.Values))
	}
	return &query.TimeSeriesResponse{
		StartTimestamp: start.UnixMilli(),
		EndTimestamp:   start.Add(time.Duration(n) * bucket).UnixMilli(),
		Interval:       bucket.Milliseconds(),
		Data:           series,
	}
}

// Generate answers q with one increasing series per requested field over the
// query interval.
func Generate(q *query.Query) (*query.TimeSeriesResponse, error) {
	start, err := time.Parse(time.RFC3339, q.Interval.StartISO8601)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "bad interval start", err)
	}
	end, err := time.Parse(time.RFC3339, q.Interval.EndISO8601)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "bad interval end", err)
	}
	span := end.Sub(start)

	bucket := time.Duration(q.Interval.MinBucketLength) * time.Second
	if q.Interval.BucketCount > 0 {
		bucket = span / time.Duration(q.Interval.BucketCount)
	}
	if bucket <= 0 {
		bucket = time.Minute
	}
	n := int(span / bucket)

	series := make([]query.SeriesData, 0, len(q.Fields))
	for _, name := range q.FieldNames() {
		series = append(series, Series(name, Ramp(n, 1, 1)))
	}
	resp := TimeSeries(start, bucket, series...)
	resp.EndTimestamp = start.Add(time.Duration(n) * bucket).UnixMilli()
	return resp, nil
}
