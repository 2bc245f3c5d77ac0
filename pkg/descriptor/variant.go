// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/filter"
)

// Variant is one of the chart descriptor shapes found in stored dashboards:
// Current, LegacyTimeSeries or LegacyList.
type Variant interface {
	isVariant()
}

// Current is the explicit shape: a query object plus optional columns.
type Current struct {
	Chart Chart
}

// LegacyTimeSeries is the implicit time-series shape driven by a metrics
// list and a dimension map.
type LegacyTimeSeries struct {
	// Kind is line unless the document asked for bar or area.
	Kind       ChartType
	Common     legacyCommon
	Metrics    []legacyMetric
	Dimensions map[string]string
	GroupBy    []string
}

// LegacyList is the old "list" table shape.
type LegacyList struct {
	Common     legacyCommon
	Columns    []Column
	Dimensions map[string]string
	OrderBy    *OrderBy
	Limit      int
}

func (Current) isVariant()          {}
func (LegacyTimeSeries) isVariant() {}
func (LegacyList) isVariant()       {}

type legacyCommon struct {
	Title        string      `json:"title"`
	DataSource   string      `json:"dataSource"`
	Width        int         `json:"width"`
	YAxis        []YAxis     `json:"yAxis"`
	Details      *Details    `json:"details"`
	ZoomOnTime   bool        `json:"zoomOnTime"`
	Tracing      *Tracing    `json:"tracing"`
	Precondition []string    `json:"precondition"`
	Threshold    *float64    `json:"threshold"`
	Pagination   *Pagination `json:"pagination"`
}

// legacyMetric is a metrics entry: a bare name or an object carrying both
// the field and its rendering.
type legacyMetric struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Format     string `json:"format"`
	YAxis      int    `json:"yAxis"`
	ChartType  string `json:"chartType"`
	Fill       bool   `json:"fill"`
	Aggregator string `json:"aggregator"`
}

func (m *legacyMetric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &m.Name)
	}
	type plain legacyMetric
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = legacyMetric(p)
	return nil
}

// wireChart is the union of every field any shape may carry.
type wireChart struct {
	legacyCommon
	Type    string   `json:"type"`
	Query   *Query   `json:"query"`
	Columns []Column `json:"columns"`
	Invalid string   `json:"invalid"`

	Metrics    []legacyMetric             `json:"metrics"`
	Dimensions map[string]json.RawMessage `json:"dimensions"`
	GroupBy    []string                   `json:"groupBy"`
	OrderBy    *OrderBy                   `json:"orderBy"`
	Limit      int                        `json:"limit"`
}

// DecodeVariant classifies one chart document.
func DecodeVariant(data []byte) (Variant, error) {
	var w wireChart
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	dims, err := legacyDimensions(w.Dimensions)
	if err != nil {
		return nil, err
	}

	if w.Query != nil {
		return Current{Chart: Chart{
			Type:         ChartType(w.Type),
			Title:        w.Title,
			DataSource:   w.DataSource,
			Width:        w.Width,
			Query:        *w.Query,
			Columns:      w.Columns,
			YAxis:        w.YAxis,
			Details:      w.Details,
			ZoomOnTime:   w.ZoomOnTime,
			Tracing:      w.Tracing,
			Precondition: w.Precondition,
			Threshold:    w.Threshold,
			Pagination:   w.Pagination,
			Invalid:      w.Invalid,
		}}, nil
	}

	if w.Type == "list" || w.Type == string(TypeTable) {
		return LegacyList{
			Common:     w.legacyCommon,
			Columns:    w.Columns,
			Dimensions: dims,
			OrderBy:    w.OrderBy,
			Limit:      w.Limit,
		}, nil
	}

	if len(w.Metrics) == 0 && len(w.Columns) > 0 {
		// Very old time-series charts listed their metrics as columns.
		for _, c := range w.Columns {
			w.Metrics = append(w.Metrics, legacyMetric{
				Name: c.Name, Title: c.Title, Format: c.Format,
				YAxis: c.YAxis, ChartType: c.ChartType, Fill: c.Fill,
			})
		}
	}
	kind := TypeLine
	if ChartType(w.Type).IsTimeSeries() {
		kind = ChartType(w.Type)
	}
	return LegacyTimeSeries{
		Kind:       kind,
		Common:     w.legacyCommon,
		Metrics:    w.Metrics,
		Dimensions: dims,
		GroupBy:    w.GroupBy,
	}, nil
}

// legacyDimensions accepts {"dim": "value"}, {"dim": {"value": ...}} and
// bare scalars such as {"port": 8080}. Null values are dropped.
func legacyDimensions(raw map[string]json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for name, msg := range raw {
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("dimension %q: %w", name, err)
		}
		if obj, ok := v.(map[string]any); ok {
			v = obj["value"]
		}
		switch v := v.(type) {
		case nil:
			continue
		case string:
			out[name] = v
		case float64, bool:
			out[name] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("dimension %q: unsupported value %s", name, bytes.TrimSpace(msg))
		}
	}
	return out, nil
}

// Normalize converts any variant into the canonical chart. It never assigns
// an ID. Normalizing the Current form of a normalized chart yields the same
// chart.
func Normalize(v Variant) Chart {
	switch v := v.(type) {
	case Current:
		return normalizeCurrent(v.Chart)
	case LegacyTimeSeries:
		return normalizeCurrent(v.toCurrent())
	case LegacyList:
		return normalizeCurrent(v.toCurrent())
	default:
		panic(fmt.Sprintf("descriptor: unknown variant %T", v))
	}
}

// AsVariant re-expresses a canonical chart in the Current shape.
func (c Chart) AsVariant() Variant {
	return Current{Chart: c}
}

func (l LegacyTimeSeries) toCurrent() Chart {
	kind := l.Kind
	if kind == "" {
		kind = TypeLine
	}
	fields := make([]Field, 0, len(l.Metrics))
	columns := make([]Column, 0, len(l.Metrics))
	for _, m := range l.Metrics {
		fields = append(fields, Field{Field: m.Name, Name: m.Name, Aggregator: m.Aggregator})
		columns = append(columns, Column{
			Name: m.Name, Title: m.Title, Format: m.Format,
			YAxis: m.YAxis, ChartType: m.ChartType, Fill: m.Fill,
		})
	}
	return l.Common.chart(kind, Query{
		DataSource: l.Common.DataSource,
		Type:       QueryTimeSeries,
		Fields:     fields,
		GroupBy:    l.GroupBy,
		Filters:    dimensionFilters(l.Dimensions),
	}, columns)
}

func (l LegacyList) toCurrent() Chart {
	fields := make([]Field, 0, len(l.Columns))
	for _, c := range l.Columns {
		fields = append(fields, Field{Field: c.Name, Name: c.Name})
	}
	return l.Common.chart(TypeTable, Query{
		DataSource: l.Common.DataSource,
		Type:       QueryList,
		Fields:     fields,
		Filters:    dimensionFilters(l.Dimensions),
		OrderBy:    l.OrderBy,
		Limit:      l.Limit,
	}, l.Columns)
}

func (c legacyCommon) chart(kind ChartType, q Query, columns []Column) Chart {
	return Chart{
		Type:         kind,
		Title:        c.Title,
		DataSource:   c.DataSource,
		Width:        c.Width,
		Query:        q,
		Columns:      columns,
		YAxis:        c.YAxis,
		Details:      c.Details,
		ZoomOnTime:   c.ZoomOnTime,
		Tracing:      c.Tracing,
		Precondition: c.Precondition,
		Threshold:    c.Threshold,
		Pagination:   c.Pagination,
	}
}

func dimensionFilters(dims map[string]string) []filter.Filter {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]filter.Filter, 0, len(names))
	for _, name := range names {
		out = append(out, filter.Equals(name, dims[name]))
	}
	return out
}

const defaultWidth = 4

func normalizeCurrent(c Chart) Chart {
	switch strings.ToLower(string(c.Type)) {
	case "", "timeseries", string(TypeLine):
		c.Type = TypeLine
	case "list", string(TypeTable):
		c.Type = TypeTable
	case string(TypeBar):
		c.Type = TypeBar
	case string(TypeArea):
		c.Type = TypeArea
	}
	if c.Width <= 0 {
		c.Width = defaultWidth
	}

	if c.Query.DataSource == "" {
		c.Query.DataSource = c.DataSource
	}
	if c.DataSource == "" {
		c.DataSource = c.Query.DataSource
	}
	if c.Query.Type == "" {
		switch {
		case c.Type.IsTimeSeries():
			c.Query.Type = QueryTimeSeries
		case len(c.Query.GroupBy) > 0:
			c.Query.Type = QueryGroupBy
		default:
			c.Query.Type = QueryList
		}
	}

	c.Query.Fields = normalizeFields(c.Query.Fields)
	if len(c.Columns) == 0 {
		c.Columns = columnsFor(c)
	}
	if c.Details != nil {
		d := *c.Details
		if d.Query == nil {
			q := Query{DataSource: c.Query.DataSource, Type: QueryList}
			for _, col := range d.Columns {
				q.Fields = append(q.Fields, Field{Field: col.Name, Name: col.Name})
			}
			d.Query = &q
		} else {
			q := *d.Query
			if q.DataSource == "" {
				q.DataSource = c.Query.DataSource
			}
			if q.Type == "" {
				q.Type = QueryList
			}
			q.Fields = normalizeFields(q.Fields)
			d.Query = &q
		}
		c.Details = &d
	}
	return c
}

func normalizeFields(fields []Field) []Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		if f.Field == "" {
			f.Field = f.Name
		}
		if f.Name == "" {
			f.Name = f.Field
		}
		out[i] = f
	}
	return out
}

// columnsFor derives columns from the query: group-by dimensions first for
// tables, then every field.
func columnsFor(c Chart) []Column {
	var cols []Column
	if c.IsTable() {
		for _, g := range c.Query.GroupBy {
			cols = append(cols, Column{Name: g})
		}
	}
	for _, f := range c.Query.Fields {
		cols = append(cols, Column{Name: f.DisplayName()})
	}
	return cols
}

type wireDashboard struct {
	Name       string               `json:"name"`
	Title      string               `json:"title"`
	Charts     []json.RawMessage    `json:"charts"`
	FilterBars []FilterBar          `json:"filterBars"`
	Cascade    filter.CascadePolicy `json:"cascade"`
}

// Load parses a dashboard document, normalizes every chart once and assigns
// fresh chart ids.
func Load(data []byte) (*Dashboard, error) {
	var w wireDashboard
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidDescriptor, "decode dashboard", err)
	}
	d := &Dashboard{
		Name:       w.Name,
		Title:      w.Title,
		FilterBars: w.FilterBars,
		Cascade:    w.Cascade,
		Charts:     make([]Chart, 0, len(w.Charts)),
	}
	if d.Title == "" {
		d.Title = d.Name
	}
	for i, raw := range w.Charts {
		var c Chart
		if v, err := DecodeVariant(raw); err != nil {
			c = unreadableChart(raw, i, err)
		} else {
			c = Normalize(v)
		}
		c.ID = uuid.NewString()
		d.Charts = append(d.Charts, c)
	}
	return d, nil
}

// unreadableChart keeps the slot of a chart document that failed to decode.
// Title and type are recovered when the document allows it.
func unreadableChart(raw json.RawMessage, index int, err error) Chart {
	var head struct {
		Title any `json:"title"`
		Type  any `json:"type"`
	}
	_ = json.Unmarshal(raw, &head)
	c := Chart{Invalid: fmt.Sprintf("chart %d: %v", index, err)}
	if t, ok := head.Title.(string); ok {
		c.Title = t
	}
	if t, ok := head.Type.(string); ok && (t == "list" || t == string(TypeTable)) {
		c.Type = TypeTable
	}
	return normalizeCurrent(c)
}
