// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package chart defines the option model consumed by chart widgets.
//
// The model mirrors the option object of common plotting libraries: a title,
// a legend, a category x axis with bucket labels, one or more value axes and
// a list of series. Widgets receive a Patch and merge it into their current
// option with Apply.
package chart

import (
	"math"
	"slices"
)

// Title is the chart heading.
type Title struct {
	Text    string `json:"text"`
	Subtext string `json:"subtext,omitempty"`
}

// Legend lists the visible series names.
type Legend struct {
	Data []string `json:"data"`
}

// XAxis is the category axis of bucket labels.
type XAxis struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// YAxis is one value axis.
type YAxis struct {
	Type     string   `json:"type"`
	Format   string   `json:"format,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Interval *float64 `json:"interval,omitempty"`
}

// AreaStyle fills the area below a line.
type AreaStyle struct {
	Opacity float64 `json:"opacity"`
}

// Series is one plotted line or bar.
type Series struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Data       []float64  `json:"data"`
	YAxisIndex int        `json:"yAxisIndex,omitempty"`
	AreaStyle  *AreaStyle `json:"areaStyle,omitempty"`
}

// Max returns the largest finite value of the series, or 0 when empty.
func (s Series) Max() float64 {
	m, seen := 0.0, false
	for _, v := range s.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !seen || v > m {
			m, seen = v, true
		}
	}
	return m
}

// Option is the full state of a chart widget.
type Option struct {
	Title  *Title   `json:"title,omitempty"`
	Legend *Legend  `json:"legend,omitempty"`
	XAxis  *XAxis   `json:"xAxis,omitempty"`
	YAxis  []YAxis  `json:"yAxis,omitempty"`
	Series []Series `json:"series"`
	// Hint replaces the plot with a message, for placeholders and inline
	// errors. An empty hint shows the plot.
	Hint string `json:"hint,omitempty"`
}

// Clone returns a deep copy of the option.
func (o Option) Clone() Option {
	out := Option{Hint: o.Hint}
	if o.Title != nil {
		t := *o.Title
		out.Title = &t
	}
	if o.Legend != nil {
		out.Legend = &Legend{Data: slices.Clone(o.Legend.Data)}
	}
	if o.XAxis != nil {
		out.XAxis = &XAxis{Type: o.XAxis.Type, Data: slices.Clone(o.XAxis.Data)}
	}
	out.YAxis = slices.Clone(o.YAxis)
	if o.Series != nil {
		out.Series = make([]Series, len(o.Series))
		for i, s := range o.Series {
			s.Data = slices.Clone(s.Data)
			out.Series[i] = s
		}
	}
	return out
}

// SeriesByID returns the series with the given id.
func (o Option) SeriesByID(id string) (Series, bool) {
	for _, s := range o.Series {
		if s.ID == id {
			return s, true
		}
	}
	return Series{}, false
}

// Patch is an option update.
type Patch struct {
	Option
	// NotMerge replaces the whole option instead of merging into it.
	NotMerge bool `json:"-"`
	// Remove lists series ids to drop after merging.
	Remove []string `json:"-"`
	// ClearHint removes a previously set hint.
	ClearHint bool `json:"-"`
}

// Apply merges p into base and returns the result. Series are merged by id:
// a patched series replaces the existing one in place and unknown ids are
// appended. Non-nil components replace their counterpart.
func Apply(base Option, p Patch) Option {
	if p.NotMerge {
		out := p.Option.Clone()
		return remove(out, p.Remove)
	}
	out := base.Clone()
	patch := p.Option.Clone()
	if patch.Title != nil {
		out.Title = patch.Title
	}
	if patch.Legend != nil {
		out.Legend = patch.Legend
	}
	if patch.XAxis != nil {
		out.XAxis = patch.XAxis
	}
	if patch.YAxis != nil {
		out.YAxis = patch.YAxis
	}
	if p.ClearHint {
		out.Hint = ""
	}
	if patch.Hint != "" {
		out.Hint = patch.Hint
	}
	for _, s := range patch.Series {
		idx := slices.IndexFunc(out.Series, func(e Series) bool { return e.ID == s.ID })
		if idx >= 0 {
			out.Series[idx] = s
		} else {
			out.Series = append(out.Series, s)
		}
	}
	return remove(out, p.Remove)
}

func remove(o Option, ids []string) Option {
	if len(ids) == 0 {
		return o
	}
	o.Series = slices.DeleteFunc(o.Series, func(s Series) bool {
		return slices.Contains(ids, s.ID)
	})
	if o.Legend != nil {
		names := make([]string, 0, len(o.Series))
		for _, s := range o.Series {
			names = append(names, s.Name)
		}
		o.Legend.Data = names
	}
	return o
}
