// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema describes data source schemas and derives filter bars from
// them.
package schema

import (
	"github.com/jllopis/kairos-console/pkg/format"
)

// Dimension is a categorical field of a data source.
type Dimension struct {
	Name        string `json:"name"`
	Alias       string `json:"alias,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	// Visible defaults to true when absent.
	Visible *bool `json:"visible,omitempty"`
}

// IsVisible reports whether the dimension gets a selector.
func (d Dimension) IsVisible() bool {
	return d.Visible == nil || *d.Visible
}

// Label returns the text shown next to the selector.
func (d Dimension) Label() string {
	switch {
	case d.DisplayText != "":
		return d.DisplayText
	case d.Alias != "":
		return d.Alias
	default:
		return d.Name
	}
}

// Metric is a numeric field of a data source.
type Metric struct {
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

// Schema is the answer of the schema service for one data source.
type Schema struct {
	Name           string      `json:"name"`
	DimensionsSpec []Dimension `json:"dimensionsSpec"`
	MetricsSpec    []Metric    `json:"metricsSpec"`
}

// Dimension returns the dimension called name or aliased as name.
func (s *Schema) Dimension(name string) (Dimension, bool) {
	for _, d := range s.DimensionsSpec {
		if d.Name == name || (d.Alias != "" && d.Alias == name) {
			return d, true
		}
	}
	return Dimension{}, false
}

// Metric returns the metric called name.
func (s *Schema) Metric(name string) (Metric, bool) {
	for _, m := range s.MetricsSpec {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Application returns the application scope dimension (index 0).
func (s *Schema) Application() (Dimension, bool) {
	if len(s.DimensionsSpec) == 0 {
		return Dimension{}, false
	}
	return s.DimensionsSpec[0], true
}

// Instance returns the instance scope dimension (index 1).
func (s *Schema) Instance() (Dimension, bool) {
	if len(s.DimensionsSpec) < 2 {
		return Dimension{}, false
	}
	return s.DimensionsSpec[1], true
}

var unitFormats = map[string]string{
	"byte":        format.BinaryByte,
	"bytes":       format.BinaryByte,
	"byte/s":      format.ByteRate,
	"bytes/s":     format.ByteRate,
	"percent":     format.Percentage,
	"percentage":  format.Percentage,
	"nanosecond":  format.Nanosecond,
	"microsecond": format.Microsecond,
	"millisecond": format.Millisecond,
	"ns":          format.Nanosecond,
	"us":          format.Microsecond,
	"ms":          format.Millisecond,
	"count/s":     format.Rate,
	"rate":        format.Rate,
	"count":       format.CompactNumber,
}

// FormatFor returns the format tag for a metric's unit, or "" when the
// metric or its unit is unknown.
func (s *Schema) FormatFor(metric string) string {
	m, ok := s.Metric(metric)
	if !ok {
		return ""
	}
	return unitFormats[m.Unit]
}
