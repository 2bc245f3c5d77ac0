// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"slices"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/filter"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/query"
)

// Scope is the role of a selector in a filter bar.
type Scope int

const (
	ScopeOther Scope = iota
	ScopeApplication
	ScopeInstance
)

func (s Scope) String() string {
	switch s {
	case ScopeApplication:
		return "application"
	case ScopeInstance:
		return "instance"
	default:
		return "other"
	}
}

// Selector is one dropdown of a filter bar.
type Selector struct {
	Key       string `json:"key"`
	Dimension string `json:"dimension"`
	Label     string `json:"label"`
	Scope     Scope  `json:"scope"`
}

// Bar is a filter bar generated from a schema.
type Bar struct {
	Prefix     string     `json:"prefix,omitempty"`
	DataSource string     `json:"dataSource"`
	Selectors  []Selector `json:"selectors"`
}

// BuildBar generates the selectors of fb from s. Without an explicit
// dimension list every visible dimension gets a selector.
func BuildBar(s *Schema, fb descriptor.FilterBar) (Bar, error) {
	bar := Bar{Prefix: fb.Prefix, DataSource: fb.DataSource}
	if bar.DataSource == "" {
		bar.DataSource = s.Name
	}

	scopes := make(map[string]Scope, 2)
	if d, ok := s.Application(); ok {
		scopes[d.Name] = ScopeApplication
	}
	if d, ok := s.Instance(); ok {
		scopes[d.Name] = ScopeInstance
	}

	var dims []Dimension
	if len(fb.Dimensions) == 0 {
		for _, d := range s.DimensionsSpec {
			if d.IsVisible() {
				dims = append(dims, d)
			}
		}
	} else {
		for _, name := range fb.Dimensions {
			d, ok := s.Dimension(name)
			if !ok {
				return Bar{}, fmt.Errorf("schema %s has no dimension %q", s.Name, name)
			}
			dims = append(dims, d)
		}
	}

	for _, d := range dims {
		bar.Selectors = append(bar.Selectors, Selector{
			Key:       filter.Key(fb.Prefix, d.Name),
			Dimension: d.Name,
			Label:     d.Label(),
			Scope:     scopes[d.Name],
		})
	}
	return bar, nil
}

// Selector returns the selector with the given key.
func (b Bar) Selector(key string) (Selector, bool) {
	for _, sel := range b.Selectors {
		if sel.Key == key {
			return sel, true
		}
	}
	return Selector{}, false
}

func (b Bar) scoped(scope Scope) (Selector, bool) {
	for _, sel := range b.Selectors {
		if sel.Scope == scope {
			return sel, true
		}
	}
	return Selector{}, false
}

// Cascade returns the default reset policy of the bar: changing the
// application resets the instance.
func (b Bar) Cascade() filter.CascadePolicy {
	app, ok := b.scoped(ScopeApplication)
	if !ok {
		return filter.CascadePolicy{}
	}
	inst, ok := b.scoped(ScopeInstance)
	if !ok {
		return filter.CascadePolicy{}
	}
	return filter.CascadePolicy{app.Key: {inst.Key}}
}

// ValuesQuery builds the group-by query that lists the values of a
// selector. Filters selected on the selectors before it narrow the values,
// so the instance list only holds instances of the selected application.
func (b Bar) ValuesQuery(key string, snap filter.Snapshot, r interval.Range) (*query.Query, error) {
	idx := slices.IndexFunc(b.Selectors, func(s Selector) bool { return s.Key == key })
	if idx < 0 {
		return nil, fmt.Errorf("filter bar has no selector %q", key)
	}
	sel := b.Selectors[idx]

	var filters []filter.Filter
	for _, ancestor := range b.Selectors[:idx] {
		for _, f := range snap.Filters {
			if f.Dimension == ancestor.Dimension {
				filters = append(filters, f)
			}
		}
	}

	return &query.Query{
		Type:       descriptor.QueryGroupBy,
		DataSource: b.DataSource,
		Fields:     []descriptor.Field{{Field: sel.Dimension}},
		GroupBy:    []string{sel.Dimension},
		Filters:    filters,
		Interval: query.Interval{
			StartISO8601: r.StartISO8601(),
			EndISO8601:   r.EndISO8601(),
		},
		OrderBy: &descriptor.OrderBy{Name: sel.Dimension, Order: descriptor.Asc},
	}, nil
}

// Values extracts the distinct, sorted values of dimension from a page of
// rows.
func Values(resp *query.RowsResponse, dimension string) []string {
	if resp == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(resp.Rows))
	out := make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		v, ok := row[dimension]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
