// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package series reconciles time-series responses with the series already
// rendered by a widget.
//
// Each widget owns one Set. Merge decides whether a response replaces the
// rendered series, refreshes them by identity, or appends a new prefixed
// group, and returns the chart patch to apply. Every series keeps the bucket
// anchor of the response it came from so a clicked or brushed bucket index
// maps back to an absolute time range.
package series

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/format"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/query"
)

// Mode is how a response is merged into the rendered series.
type Mode int

const (
	// Auto picks Replace or Refresh from the response.
	Auto Mode = iota
	// Replace drops the rendered base series.
	Replace
	// Refresh updates series in place by identity.
	Refresh
	// Append adds a new prefixed group and leaves existing series alone.
	Append
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Refresh:
		return "refresh"
	case Append:
		return "append"
	default:
		return "auto"
	}
}

// placeholderID identifies the synthetic all-zero series.
const placeholderID = "__placeholder__"

// Anchor locates the buckets of a series in time.
type Anchor struct {
	Start  time.Time
	Bucket time.Duration
	// Queried is the absolute range that was requested.
	Queried interval.Range
}

// Series is one rendered series.
type Series struct {
	ID     string
	Name   string
	Prefix string
	Tags   []string
	Data   []float64
	Anchor Anchor
}

// Placeholder reports whether the series is the synthetic empty baseline.
func (s *Series) Placeholder() bool {
	return strings.HasSuffix(s.ID, placeholderID)
}

// Interval maps the bucket indexes [start, end] to an absolute range clamped
// to the queried interval. Indexes may be given in either order.
func (s *Series) Interval(start, end int) interval.Range {
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	a := s.Anchor
	r := interval.Range{
		Start: a.Start.Add(time.Duration(start) * a.Bucket),
		End:   a.Start.Add(time.Duration(end+1) * a.Bucket),
	}
	if a.Queried.Valid() {
		r.Start = a.Queried.Clamp(r.Start)
		r.End = a.Queried.Clamp(r.End)
	}
	return r
}

// Request describes the query a response answers.
type Request struct {
	// Range is the absolute range that was queried.
	Range interval.Range
	// Fields are the output names of the requested fields.
	Fields []string
	// Prefix names the series group created in Append mode.
	Prefix string
}

// RequestFor builds the Request matching a built query.
func RequestFor(q *query.Query) Request {
	req := Request{Fields: q.FieldNames()}
	start, err1 := time.Parse(time.RFC3339, q.Interval.StartISO8601)
	end, err2 := time.Parse(time.RFC3339, q.Interval.EndISO8601)
	if err1 == nil && err2 == nil {
		req.Range = interval.Range{Start: start, End: end}
	}
	return req
}

// Result is the outcome of a merge.
type Result struct {
	Mode  Mode
	Patch chart.Patch
	// Remove drops the series added by an Append merge and returns the patch
	// that removes them from the widget. It is nil for other modes.
	Remove func() chart.Patch
}

// Option configures a Set.
type Option func(*Set)

// WithLabelFormat sets the format used for x axis bucket labels. The value
// passed to it is a Unix timestamp in milliseconds.
func WithLabelFormat(f format.Func) Option {
	return func(s *Set) {
		if f != nil {
			s.label = f
		}
	}
}

// Set is the rendered series set of one widget. It is safe for concurrent
// use.
type Set struct {
	mu     sync.Mutex
	chart  descriptor.Chart
	label  format.Func
	series []*Series
	labels []string
}

// NewSet creates an empty set for the chart c.
func NewSet(c descriptor.Chart, opts ...Option) *Set {
	s := &Set{chart: c, label: format.Get(format.ShortDateTime)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetermineMode picks the merge mode for a response when none is forced.
func DetermineMode(resp *query.TimeSeriesResponse, requested int) Mode {
	if len(resp.Data) == 0 {
		return Replace
	}
	if len(resp.Data) < requested {
		return Replace
	}
	return Refresh
}

// Merge folds resp into the set and returns the chart patch to apply.
func (s *Set) Merge(resp *query.TimeSeriesResponse, req Request, mode Mode) (Result, error) {
	if resp == nil {
		return Result{}, kerrors.New(kerrors.CodeInvalidInput, "nil time series response", nil)
	}
	if mode == Auto {
		mode = DetermineMode(resp, len(req.Fields))
	}
	if mode == Append && req.Prefix == "" {
		return Result{}, kerrors.New(kerrors.CodeInvalidInput, "append requires a series prefix", nil)
	}
	if !req.Range.Valid() {
		req.Range = interval.Range{Start: resp.Start(), End: resp.End()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := Anchor{Start: resp.Start(), Bucket: resp.BucketLength(), Queried: req.Range}
	prefix := ""
	if mode == Append {
		prefix = req.Prefix
	}
	incoming := s.convert(resp, anchor, prefix, req.Fields)

	var stale []string
	switch mode {
	case Replace:
		s.series = append(incoming, s.prefixedLocked()...)
	case Refresh:
		returned := make(map[string]bool, len(incoming))
		for _, in := range incoming {
			returned[in.ID] = true
			if idx := s.indexLocked(in.ID); idx >= 0 {
				s.series[idx] = in
			} else {
				s.series = append(s.series, in)
			}
		}
		// Primary series the response no longer carries are stale.
		s.dropLocked(func(e *Series) bool {
			if e.Prefix == "" && !returned[e.ID] {
				stale = append(stale, e.ID)
				return true
			}
			return false
		})
	case Append:
		s.dropLocked(func(e *Series) bool { return e.Prefix == prefix })
		s.series = append(s.series, incoming...)
	}
	if mode != Append || len(s.labels) == 0 {
		s.labels = s.axisLabels(resp)
	}

	res := Result{Mode: mode, Patch: chart.Patch{Option: s.optionLocked(), NotMerge: mode == Replace, Remove: stale, ClearHint: true}}
	if mode == Append {
		res.Remove = func() chart.Patch { return s.RemovePrefix(prefix) }
	}
	return res, nil
}

// RemovePrefix drops every series added under prefix.
func (s *Set) RemovePrefix(prefix string) chart.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.series {
		if prefix != "" && e.Prefix == prefix {
			ids = append(ids, e.ID)
		}
	}
	s.dropLocked(func(e *Series) bool { return prefix != "" && e.Prefix == prefix })
	return chart.Patch{Option: s.optionLocked(), Remove: ids}
}

// Series returns a copy of the rendered series.
func (s *Set) Series() []Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Series, 0, len(s.series))
	for _, e := range s.series {
		c := *e
		c.Data = append([]float64(nil), e.Data...)
		out = append(out, c)
	}
	return out
}

// Lookup returns the series with the given id.
func (s *Set) Lookup(id string) (Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return *s.series[idx], true
	}
	return Series{}, false
}

// First returns the first rendered series, used to resolve bucket indexes
// emitted by chart events that do not name a series.
func (s *Set) First() (Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.series) == 0 {
		return Series{}, false
	}
	return *s.series[0], true
}

// Len returns the number of rendered series.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}

// Reset discards every series.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = nil
	s.labels = nil
}

func (s *Set) convert(resp *query.TimeSeriesResponse, anchor Anchor, prefix string, fields []string) []*Series {
	if len(resp.Data) == 0 {
		name := s.chart.Title
		if len(fields) > 0 {
			name = s.displayName(fields[0])
		}
		return []*Series{{
			ID:     seriesID(prefix, []string{placeholderID}),
			Name:   prefixed(prefix, name),
			Prefix: prefix,
			Data:   make([]float64, resp.BucketCount()),
			Anchor: anchor,
		}}
	}
	out := make([]*Series, 0, len(resp.Data))
	for _, d := range resp.Data {
		name := s.displayName(d.Metric())
		if group := d.Group(); len(group) > 0 {
			name = strings.Join(group, " ") + " " + name
		}
		out = append(out, &Series{
			ID:     seriesID(prefix, d.Tags),
			Name:   prefixed(prefix, name),
			Prefix: prefix,
			Tags:   append([]string(nil), d.Tags...),
			Data:   append([]float64(nil), d.Values...),
			Anchor: anchor,
		})
	}
	return out
}

func (s *Set) displayName(metric string) string {
	if col, ok := s.chart.Column(metric); ok {
		return col.DisplayTitle()
	}
	return metric
}

func (s *Set) axisLabels(resp *query.TimeSeriesResponse) []string {
	n := resp.BucketCount()
	if n == 0 {
		for _, d := range resp.Data {
			n = max(n, len(d.Values))
		}
	}
	labels := make([]string, n)
	for i := range labels {
		ts := resp.StartTimestamp + int64(i)*resp.Interval
		labels[i] = s.label(float64(ts))
	}
	return labels
}

func (s *Set) optionLocked() chart.Option {
	opt := chart.Option{
		Legend: &chart.Legend{Data: make([]string, 0, len(s.series))},
		XAxis:  &chart.XAxis{Type: "category", Data: append([]string(nil), s.labels...)},
		Series: make([]chart.Series, 0, len(s.series)),
	}
	if s.chart.Title != "" {
		opt.Title = &chart.Title{Text: s.chart.Title}
	}
	for _, e := range s.series {
		opt.Legend.Data = append(opt.Legend.Data, e.Name)
		opt.Series = append(opt.Series, s.chartSeries(e))
	}
	opt.YAxis = s.yAxes(opt.Series)
	return opt
}

func (s *Set) chartSeries(e *Series) chart.Series {
	cs := chart.Series{
		ID:   e.ID,
		Name: e.Name,
		Type: string(s.chart.Type),
		Data: append([]float64(nil), e.Data...),
	}
	if cs.Type == string(descriptor.TypeArea) {
		cs.Type = string(descriptor.TypeLine)
		cs.AreaStyle = &chart.AreaStyle{Opacity: 0.3}
	}
	metric := ""
	if len(e.Tags) > 0 {
		metric = e.Tags[len(e.Tags)-1]
	}
	if col, ok := s.chart.Column(metric); ok {
		if col.ChartType != "" {
			cs.Type = col.ChartType
		}
		cs.YAxisIndex = col.YAxis
		if col.Fill {
			cs.AreaStyle = &chart.AreaStyle{Opacity: 0.3}
		}
	}
	return cs
}

func (s *Set) yAxes(series []chart.Series) []chart.YAxis {
	n := len(s.chart.YAxis)
	for _, cs := range series {
		n = max(n, cs.YAxisIndex+1)
	}
	n = max(n, 1)
	axes := make([]chart.YAxis, n)
	for i := range axes {
		axes[i].Type = "value"
		if i < len(s.chart.YAxis) {
			src := s.chart.YAxis[i]
			axes[i].Format = src.Format
			axes[i].Min = src.Min
			axes[i].Interval = src.Interval
		}
	}
	if s.chart.Threshold != nil {
		dataMax, seen := 0.0, false
		for _, cs := range series {
			if cs.YAxisIndex != 0 || len(cs.Data) == 0 {
				continue
			}
			if m := cs.Max(); !seen || m > dataMax {
				dataMax, seen = m, true
			}
		}
		top := AxisMax(dataMax, *s.chart.Threshold)
		axes[0].Max = &top
	}
	return axes
}

// AxisMax returns the value axis maximum that keeps a threshold line visible.
func AxisMax(dataMax, threshold float64) float64 {
	return max(dataMax, threshold)
}

func (s *Set) indexLocked(id string) int {
	for i, e := range s.series {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Set) prefixedLocked() []*Series {
	var out []*Series
	for _, e := range s.series {
		if e.Prefix != "" {
			out = append(out, e)
		}
	}
	return out
}

func (s *Set) dropLocked(match func(*Series) bool) {
	kept := s.series[:0]
	for _, e := range s.series {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	clear(s.series[len(kept):])
	s.series = kept
}

func seriesID(prefix string, tags []string) string {
	id := strings.Join(tags, "|")
	if prefix != "" {
		return prefix + "/" + id
	}
	return id
}

func prefixed(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s %s", prefix, name)
}
