// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package descriptor defines the canonical dashboard model.
//
// Dashboard documents come in a legacy shape (implicit metrics list,
// dimension map, top-level groupBy) and a current shape (explicit query with
// fields and groupBy). Load decodes every chart into a Variant and runs
// Normalize exactly once; downstream code only sees Chart.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jllopis/kairos-console/pkg/filter"
)

// ChartType is the canonical widget kind.
type ChartType string

const (
	TypeLine  ChartType = "line"
	TypeBar   ChartType = "bar"
	TypeArea  ChartType = "area"
	TypeTable ChartType = "table"
)

// IsTimeSeries reports whether the chart plots time buckets.
func (t ChartType) IsTimeSeries() bool {
	return t == TypeLine || t == TypeBar || t == TypeArea
}

// QueryType is the backend query kind.
type QueryType string

const (
	QueryTimeSeries QueryType = "timeseries"
	QueryList       QueryType = "list"
	QueryGroupBy    QueryType = "groupBy"
)

// Field is a metric or dimension requested by a query. On the wire it is
// either a bare name or {field, name, aggregator}.
type Field struct {
	Field      string `json:"field"`
	Name       string `json:"name,omitempty"`
	Aggregator string `json:"aggregator,omitempty"`
}

// DisplayName returns the output name of the field.
func (f Field) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Field
}

// UnmarshalJSON accepts a bare string or an object.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*f = Field{Field: name, Name: name}
		return nil
	}
	type plain Field
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Field(p)
	if f.Field == "" {
		f.Field = f.Name
	}
	if f.Name == "" {
		f.Name = f.Field
	}
	return nil
}

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// OrderBy selects the sort column.
type OrderBy struct {
	Name  string `json:"name"`
	Order Order  `json:"order,omitempty"`
}

// Query is the declarative query of a chart.
type Query struct {
	DataSource       string          `json:"dataSource"`
	Type             QueryType       `json:"type"`
	Fields           []Field         `json:"fields"`
	GroupBy          []string        `json:"groupBy,omitempty"`
	Filters          []filter.Filter `json:"filters,omitempty"`
	FilterExpression string          `json:"filter,omitempty"`
	OrderBy          *OrderBy        `json:"orderBy,omitempty"`
	Limit            int             `json:"limit,omitempty"`
	BucketCount      int             `json:"bucketCount,omitempty"`
	// MinBucketLength is the smallest bucket in seconds. It wins over the
	// bucket suggested by the selected interval.
	MinBucketLength int `json:"minBucketLength,omitempty"`
}

// Column describes one rendered column or series. On the wire it is either a
// bare name or an object.
type Column struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Format    string `json:"format,omitempty"`
	YAxis     int    `json:"yAxis,omitempty"`
	ChartType string `json:"chartType,omitempty"`
	Fill      bool   `json:"fill,omitempty"`
	Sortable  bool   `json:"sortable,omitempty"`
}

// DisplayTitle returns the title, or the name when no title is set.
func (c Column) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Name
}

// UnmarshalJSON accepts a bare string or an object.
func (c *Column) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Column{Name: name}
		return nil
	}
	type plain Column
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Column(p)
	return nil
}

// YAxis configures one value axis.
type YAxis struct {
	Format   string   `json:"format,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Interval *float64 `json:"interval,omitempty"`
}

// Details is the drill-down table opened from a brush selection.
type Details struct {
	Columns []Column `json:"columns"`
	Query   *Query   `json:"query,omitempty"`
}

// Tracing maps result columns to trace search filters.
type Tracing struct {
	// Mappings maps a column or dimension name to a trace filter name.
	Mappings map[string]string `json:"mappings"`
}

// Pagination configures table paging.
type Pagination struct {
	Server   bool `json:"server"`
	PageSize int  `json:"pageSize,omitempty"`
}

// Chart is the canonical chart or table descriptor.
type Chart struct {
	// ID is assigned at load time and is not stable across reloads.
	ID           string      `json:"id,omitempty"`
	Type         ChartType   `json:"type"`
	Title        string      `json:"title,omitempty"`
	DataSource   string      `json:"dataSource"`
	Width        int         `json:"width"`
	Query        Query       `json:"query"`
	Columns      []Column    `json:"columns"`
	YAxis        []YAxis     `json:"yAxis,omitempty"`
	Details      *Details    `json:"details,omitempty"`
	ZoomOnTime   bool        `json:"zoomOnTime,omitempty"`
	Tracing      *Tracing    `json:"tracing,omitempty"`
	Precondition []string    `json:"precondition,omitempty"`
	Threshold    *float64    `json:"threshold,omitempty"`
	Pagination   *Pagination `json:"pagination,omitempty"`
	// Invalid holds the decode error of a chart document that could not be
	// read. Such a chart renders as a failed widget and is never queried.
	Invalid string `json:"invalid,omitempty"`
}

// IsTable reports whether the chart renders as a table.
func (c Chart) IsTable() bool {
	return c.Type == TypeTable
}

// ServerSorted reports whether sorting must be delegated to the backend:
// tables paginated by the server or capped by an explicit limit.
func (c Chart) ServerSorted() bool {
	if !c.IsTable() {
		return false
	}
	return (c.Pagination != nil && c.Pagination.Server) || c.Query.Limit > 0
}

// Column returns the column named name.
func (c Chart) Column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// FilterBar declares a dynamically generated filter bar.
type FilterBar struct {
	// Prefix disambiguates keys when a page has several bars.
	Prefix     string   `json:"prefix,omitempty"`
	DataSource string   `json:"dataSource"`
	Dimensions []string `json:"dimensions,omitempty"`
}

// Dashboard is the canonical dashboard descriptor. It is immutable after Load.
type Dashboard struct {
	Name       string               `json:"name"`
	Title      string               `json:"title"`
	Charts     []Chart              `json:"charts"`
	FilterBars []FilterBar          `json:"filterBars,omitempty"`
	Cascade    filter.CascadePolicy `json:"cascade,omitempty"`
}

// Chart returns the chart with the given id.
func (d *Dashboard) Chart(id string) (Chart, bool) {
	for _, c := range d.Charts {
		if c.ID == id {
			return c, true
		}
	}
	return Chart{}, false
}

// MarshalCanonical renders the dashboard in the current shape.
func (d *Dashboard) MarshalCanonical() ([]byte, error) {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal %s: %w", d.Name, err)
	}
	return out, nil
}
