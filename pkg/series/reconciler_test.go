// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package series

import (
	"testing"
	"time"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/query"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	hour  = interval.Range{Start: start, End: end}
)

func heapChart() descriptor.Chart {
	return descriptor.Chart{
		ID:    "heap",
		Type:  descriptor.TypeLine,
		Title: "Heap",
		Query: descriptor.Query{
			DataSource: "jvm-metrics",
			Type:       descriptor.QueryTimeSeries,
			Fields:     []descriptor.Field{{Field: "heapUsed", Name: "heapUsed"}},
		},
		Columns: []descriptor.Column{{Name: "heapUsed"}},
	}
}

func response(series ...query.SeriesData) *query.TimeSeriesResponse {
	return &query.TimeSeriesResponse{
		StartTimestamp: start.UnixMilli(),
		EndTimestamp:   end.UnixMilli(),
		Interval:       (5 * time.Minute).Milliseconds(),
		Data:           series,
	}
}

func increasing(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func TestMergeJVMHeapScenario(t *testing.T) {
	set := NewSet(heapChart())
	res, err := set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)}),
		Request{Range: hour, Fields: []string{"heapUsed"}}, Auto)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Mode != Refresh {
		t.Errorf("expected refresh, got %s", res.Mode)
	}
	opt := res.Patch.Option
	if len(opt.Series) != 1 || opt.Series[0].Name != "heapUsed" {
		t.Fatalf("expected one series named heapUsed, got %+v", opt.Series)
	}
	if len(opt.Series[0].Data) != 12 {
		t.Errorf("expected 12 points, got %d", len(opt.Series[0].Data))
	}
	if opt.XAxis == nil || len(opt.XAxis.Data) != 12 {
		t.Errorf("expected 12 x axis labels, got %+v", opt.XAxis)
	}
}

func TestEmptyResponseYieldsPlaceholder(t *testing.T) {
	set := NewSet(heapChart())
	set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)}),
		Request{Range: hour, Fields: []string{"heapUsed"}}, Auto)

	res, err := set.Merge(response(), Request{Range: hour, Fields: []string{"heapUsed"}}, Auto)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Mode != Replace || !res.Patch.NotMerge {
		t.Errorf("empty response must replace, got %s", res.Mode)
	}
	if len(res.Patch.Series) != 1 {
		t.Fatalf("expected exactly one placeholder series, got %d", len(res.Patch.Series))
	}
	data := res.Patch.Series[0].Data
	if len(data) != 12 {
		t.Errorf("placeholder length should be the bucket count, got %d", len(data))
	}
	for _, v := range data {
		if v != 0 {
			t.Fatalf("placeholder must be all zeros, got %v", data)
		}
	}
	if s, _ := set.First(); !s.Placeholder() {
		t.Errorf("first series should be the placeholder")
	}
}

func TestFewerSeriesThanFieldsReplaces(t *testing.T) {
	c := heapChart()
	c.Query.Fields = append(c.Query.Fields, descriptor.Field{Field: "heapMax", Name: "heapMax"})
	set := NewSet(c)
	req := Request{Range: hour, Fields: []string{"heapUsed", "heapMax"}}

	res, _ := set.Merge(response(
		query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)},
		query.SeriesData{Tags: []string{"heapMax"}, Values: increasing(12)},
	), req, Auto)
	if res.Mode != Refresh {
		t.Errorf("expected refresh, got %s", res.Mode)
	}

	res, _ = set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)}), req, Auto)
	if res.Mode != Replace {
		t.Errorf("fewer series than fields must replace, got %s", res.Mode)
	}
	if set.Len() != 1 {
		t.Errorf("replace should drop the vanished series, have %d", set.Len())
	}
}

func TestRefreshMergesByIdentity(t *testing.T) {
	c := heapChart()
	c.Query.GroupBy = []string{"instanceName"}
	set := NewSet(c)
	req := Request{Range: hour, Fields: []string{"heapUsed"}}

	set.Merge(response(
		query.SeriesData{Tags: []string{"a", "heapUsed"}, Values: []float64{1}},
		query.SeriesData{Tags: []string{"b", "heapUsed"}, Values: []float64{2}},
	), req, Auto)
	res, _ := set.Merge(response(
		query.SeriesData{Tags: []string{"b", "heapUsed"}, Values: []float64{5}},
		query.SeriesData{Tags: []string{"a", "heapUsed"}, Values: []float64{4}},
	), req, Auto)

	if res.Mode != Refresh || res.Patch.NotMerge {
		t.Fatalf("expected a merging refresh, got %s", res.Mode)
	}
	got := set.Series()
	if len(got) != 2 || got[0].Name != "a heapUsed" || got[0].Data[0] != 4 || got[1].Data[0] != 5 {
		t.Errorf("series must keep their slots and take new data: %+v", got)
	}
}

func TestIntervalIsClampedToQueriedRange(t *testing.T) {
	resp := response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(13)})
	// The backend aligned its last bucket past the requested end.
	resp.EndTimestamp = end.Add(5 * time.Minute).UnixMilli()

	set := NewSet(heapChart())
	if _, err := set.Merge(resp, Request{Range: hour, Fields: []string{"heapUsed"}}, Auto); err != nil {
		t.Fatalf("merge: %v", err)
	}
	s, _ := set.First()

	for i := 0; i < 20; i++ {
		r := s.Interval(i, i)
		if r.Start.Before(start) || r.End.After(end) || r.Start.After(end) {
			t.Fatalf("bucket %d interval %s escapes the queried range", i, r)
		}
	}
	last := s.Interval(12, 12)
	if !last.End.Equal(end) {
		t.Errorf("last bucket must end at the queried end, got %s", last)
	}
	r := s.Interval(3, 1)
	if !r.Start.Equal(start.Add(5*time.Minute)) || !r.End.Equal(start.Add(20*time.Minute)) {
		t.Errorf("unexpected brushed range %s", r)
	}
}

func TestThresholdAxisMax(t *testing.T) {
	tests := []struct {
		name    string
		dataMax float64
		want    float64
	}{
		{"threshold above data", 60, 100},
		{"data above threshold", 140, 140},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := heapChart()
			threshold := 100.0
			c.Threshold = &threshold
			set := NewSet(c)
			res, err := set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: []float64{10, tt.dataMax, 20}}),
				Request{Range: hour, Fields: []string{"heapUsed"}}, Auto)
			if err != nil {
				t.Fatalf("merge: %v", err)
			}
			axis := res.Patch.YAxis[0]
			if axis.Max == nil || *axis.Max != tt.want {
				t.Errorf("expected y axis max %v, got %v", tt.want, axis.Max)
			}
		})
	}
}

func TestAppendAndRemoveComparison(t *testing.T) {
	set := NewSet(heapChart())
	req := Request{Range: hour, Fields: []string{"heapUsed"}}
	set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)}), req, Auto)

	req.Prefix = "2023-12-31"
	res, err := set.Merge(response(query.SeriesData{Tags: []string{"heapUsed"}, Values: increasing(12)}), req, Append)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.Remove == nil || set.Len() != 2 {
		t.Fatalf("append should add a prefixed series and a remover")
	}
	if res.Patch.NotMerge {
		t.Errorf("append must merge into the existing option")
	}
	if _, ok := set.Lookup("2023-12-31/heapUsed"); !ok {
		t.Errorf("prefixed series not found")
	}

	// A later replace keeps comparison lines.
	req.Prefix = ""
	set.Merge(response(), req, Auto)
	if set.Len() != 2 {
		t.Errorf("replace must keep appended series, have %d", set.Len())
	}

	patch := res.Remove()
	if len(patch.Remove) != 1 || patch.Remove[0] != "2023-12-31/heapUsed" {
		t.Errorf("remover should drop exactly the prefixed series, got %v", patch.Remove)
	}
	if set.Len() != 1 {
		t.Errorf("base series must remain, have %d", set.Len())
	}

	_, err = set.Merge(response(), Request{Range: hour}, Append)
	if !kerrors.HasCode(err, kerrors.CodeInvalidInput) {
		t.Errorf("append without prefix must fail, got %v", err)
	}
}

func TestRequestFor(t *testing.T) {
	q := &query.Query{
		Fields:   []descriptor.Field{{Field: "heapUsed", Name: "used"}},
		Interval: query.Interval{StartISO8601: "2024-01-01T00:00:00Z", EndISO8601: "2024-01-01T01:00:00Z"},
	}
	req := RequestFor(q)
	if !req.Range.Start.Equal(start) || !req.Range.End.Equal(end) || len(req.Fields) != 1 || req.Fields[0] != "used" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRefreshDropsSeriesMissingFromResponse(t *testing.T) {
	c := heapChart()
	c.Query.GroupBy = []string{"instanceName"}
	set := NewSet(c)
	req := Request{Range: hour, Fields: []string{"heapUsed"}}

	set.Merge(response(
		query.SeriesData{Tags: []string{"a", "heapUsed"}, Values: increasing(12)},
		query.SeriesData{Tags: []string{"b", "heapUsed"}, Values: increasing(12)},
	), req, Auto)

	later := start.Add(5 * time.Minute)
	resp := &query.TimeSeriesResponse{
		StartTimestamp: later.UnixMilli(),
		EndTimestamp:   end.Add(5 * time.Minute).UnixMilli(),
		Interval:       (5 * time.Minute).Milliseconds(),
		Data:           []query.SeriesData{{Tags: []string{"a", "heapUsed"}, Values: increasing(6)}},
	}
	res, err := set.Merge(resp, req, Auto)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Mode != Refresh {
		t.Fatalf("one series for one field is a refresh, got %s", res.Mode)
	}
	got := set.Series()
	if len(got) != 1 || got[0].Name != "a heapUsed" {
		t.Fatalf("series b was not returned and must be dropped: %+v", got)
	}
	if !got[0].Anchor.Start.Equal(later) || len(got[0].Data) != 6 {
		t.Errorf("series a must carry the new anchor and data, got %v with %d points", got[0].Anchor.Start, len(got[0].Data))
	}
	for _, s := range res.Patch.Series {
		if s.Name == "b heapUsed" {
			t.Errorf("patch still renders the stale series")
		}
	}
	if len(res.Patch.Remove) != 1 || res.Patch.Remove[0] != "b|heapUsed" {
		t.Errorf("patch must remove the stale series from the plot, got %v", res.Patch.Remove)
	}
}
