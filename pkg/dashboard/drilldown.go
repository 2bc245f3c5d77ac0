// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/jllopis/kairos-console/pkg/events"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/series"
	"github.com/jllopis/kairos-console/pkg/widget"
)

// Brush loads the drill-down table of a chart for the range covered by the
// brushed buckets. A cleared brush clears and hides the table.
func (c *Controller) Brush(ctx context.Context, widgetID string, ev widget.BrushEvent) error {
	w, err := c.widget(widgetID)
	if err != nil {
		return err
	}
	if w.details == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "chart declares no details", nil).
			WithContext("widget", widgetID)
	}
	if ev.Cleared {
		w.details.Clear()
		w.details.Hide()
		c.emit(ctx, events.EventBrushSelected, widgetID, map[string]any{"cleared": true})
		return nil
	}

	s, err := seriesFor(w, ev.SeriesID)
	if err != nil {
		return err
	}
	r := s.Interval(ev.StartIndex, ev.EndIndex)
	if err := c.ShowDetails(ctx, widgetID, r); err != nil {
		return err
	}
	c.emit(ctx, events.EventBrushSelected, widgetID, map[string]any{
		"start": r.StartISO8601(),
		"end":   r.EndISO8601(),
	})
	return nil
}

// ShowDetails loads the drill-down table of a chart scoped to r.
func (c *Controller) ShowDetails(ctx context.Context, widgetID string, r interval.Range) error {
	w, err := c.widget(widgetID)
	if err != nil {
		return err
	}
	if w.details == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "chart declares no details", nil).
			WithContext("widget", widgetID)
	}
	if !r.Valid() {
		return kerrors.New(kerrors.CodeInvalidInput, "empty details range", nil).
			WithContext("widget", widgetID).
			WithContext("range", r.String())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	snap := c.filters.Snapshot()
	fetch := func(ctx context.Context, p query.Paging) (*query.RowsResponse, error) {
		q, err := c.builder.BuildDetails(w.chart, snap, r, &p)
		if err != nil {
			return nil, err
		}
		return c.backend.QueryRows(ctx, q)
	}
	if err := w.details.Load(ctx, widget.LoadRequest{URL: "details:" + w.chart.Details.Query.DataSource, Fetch: fetch}); err != nil {
		return err
	}
	w.details.Show()
	return nil
}

// Zoom replaces the page interval with the absolute range of the clicked
// bucket. The interval change refreshes every widget.
func (c *Controller) Zoom(ctx context.Context, widgetID string, ev widget.ClickEvent) (interval.Range, error) {
	w, err := c.widget(widgetID)
	if err != nil {
		return interval.Range{}, err
	}
	if !w.chart.ZoomOnTime {
		return interval.Range{}, kerrors.New(kerrors.CodeInvalidInput, "chart does not zoom on time", nil).
			WithContext("widget", widgetID)
	}
	s, err := seriesFor(w, ev.SeriesID)
	if err != nil {
		return interval.Range{}, err
	}
	r := s.Interval(ev.DataIndex, ev.DataIndex)
	c.emit(ctx, events.EventZoomed, widgetID, map[string]any{
		"start": r.StartISO8601(),
		"end":   r.EndISO8601(),
	})
	c.filters.SetInterval(interval.Absolute(r.Start, r.End))
	return r, nil
}

// seriesFor resolves the series an event refers to, falling back to the
// first rendered series.
func seriesFor(w *Widget, id string) (series.Series, error) {
	if w.set == nil {
		return series.Series{}, kerrors.New(kerrors.CodeInvalidInput, "widget renders no series", nil).
			WithContext("widget", w.ID())
	}
	if id != "" {
		if s, ok := w.set.Lookup(id); ok {
			return s, nil
		}
	}
	if s, ok := w.set.First(); ok {
		return s, nil
	}
	return series.Series{}, kerrors.New(kerrors.CodePreconditionUnmet, "chart has no rendered series", nil).
		WithContext("widget", w.ID())
}

// TraceFilters converts a selected row of a widget into trace search
// filters using the tracing mapping of its descriptor. Mapped columns
// missing from the row fall back to the active filter on that dimension.
func (c *Controller) TraceFilters(widgetID string, row map[string]any) (url.Values, error) {
	w, err := c.widget(widgetID)
	if err != nil {
		return nil, err
	}
	if w.chart.Tracing == nil || len(w.chart.Tracing.Mappings) == 0 {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "chart declares no tracing mapping", nil).
			WithContext("widget", widgetID)
	}

	snap := c.filters.Snapshot()
	columns := make([]string, 0, len(w.chart.Tracing.Mappings))
	for col := range w.chart.Tracing.Mappings {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	out := url.Values{}
	for _, col := range columns {
		name := w.chart.Tracing.Mappings[col]
		if v, ok := row[col]; ok && v != nil {
			out.Set(name, fmt.Sprint(v))
			continue
		}
		for _, f := range snap.Filters {
			if f.Dimension == col {
				out.Set(name, f.Matcher.Pattern)
				break
			}
		}
	}
	if r := snap.Interval.Resolve(c.now()); r.Valid() {
		out.Set("start", r.StartISO8601())
		out.Set("end", r.EndISO8601())
	}
	return out, nil
}
