// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package query

import (
	"strings"
	"time"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/filter"
	"github.com/jllopis/kairos-console/pkg/interval"
)

// Paging carries table paging and sort parameters.
type Paging struct {
	Offset  int
	Limit   int
	OrderBy *descriptor.OrderBy
}

// DefaultPageSize is used when a server paginated table sets no page size.
const DefaultPageSize = 10

// Builder turns chart descriptors into backend queries.
type Builder struct {
	now     func() time.Time
	textual bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock sets the clock used to resolve relative intervals.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithTextualFilters sends every filter as part of the filter expression
// instead of as structured matchers, for backends that only accept a
// textual predicate.
func WithTextualFilters() BuilderOption {
	return func(b *Builder) {
		b.textual = true
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the query of a chart for the live selection.
func (b *Builder) Build(c descriptor.Chart, snap filter.Snapshot, paging *Paging) (*Query, error) {
	r := snap.Interval.Resolve(b.now())
	return b.build(c, c.Query, snap, r, snap.Interval.Bucket(r), paging)
}

// BuildRange produces the query of a chart for an explicit absolute range,
// as used by zoomed popups and comparison lines.
func (b *Builder) BuildRange(c descriptor.Chart, snap filter.Snapshot, r interval.Range, paging *Paging) (*Query, error) {
	return b.build(c, c.Query, snap, r, snap.Interval.Bucket(r), paging)
}

// BuildDetails produces the drill-down table query of a chart scoped to r.
func (b *Builder) BuildDetails(c descriptor.Chart, snap filter.Snapshot, r interval.Range, paging *Paging) (*Query, error) {
	if c.Details == nil || c.Details.Query == nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "chart declares no details", nil).
			WithContext("chart", c.ID)
	}
	details := descriptor.Chart{
		ID:         c.ID,
		Type:       descriptor.TypeTable,
		DataSource: c.Details.Query.DataSource,
		Query:      *c.Details.Query,
		Columns:    c.Details.Columns,
		Pagination: &descriptor.Pagination{Server: true, PageSize: DefaultPageSize},
	}
	return b.build(details, details.Query, snap, r, snap.Interval.Bucket(r), paging)
}

func (b *Builder) build(c descriptor.Chart, qs descriptor.Query, snap filter.Snapshot, r interval.Range, bucket time.Duration, paging *Paging) (*Query, error) {
	if qs.DataSource == "" {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "query has no data source", nil).
			WithContext("chart", c.ID)
	}
	if len(qs.Fields) == 0 {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "query has no fields", nil).
			WithContext("chart", c.ID).
			WithContext("data_source", qs.DataSource)
	}
	if !r.Valid() {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "empty time range", nil).
			WithContext("chart", c.ID).
			WithContext("range", r.String())
	}

	q := &Query{
		Type:       qs.Type,
		DataSource: qs.DataSource,
		Fields:     append([]descriptor.Field(nil), qs.Fields...),
		GroupBy:    append([]string(nil), qs.GroupBy...),
		Interval: Interval{
			StartISO8601: r.StartISO8601(),
			EndISO8601:   r.EndISO8601(),
		},
	}
	switch {
	case qs.BucketCount > 0:
		q.Interval.BucketCount = qs.BucketCount
	case qs.MinBucketLength > 0:
		q.Interval.MinBucketLength = qs.MinBucketLength
	default:
		q.Interval.MinBucketLength = int(bucket / time.Second)
	}

	filters := mergeFilters(qs.Filters, snap.Filters)
	if b.textual {
		merged := filter.Snapshot{Filters: filters, Expression: snap.Expression}
		q.FilterExpression = joinExpressions(merged.ToFilterExpression(), qs.FilterExpression)
	} else {
		q.Filters = filters
		q.FilterExpression = joinExpressions(snap.Expression, qs.FilterExpression)
	}

	if c.ServerSorted() {
		q.OrderBy, q.Limit = serverPaging(c, qs, paging)
	}
	return q, nil
}

// mergeFilters appends live filters to the static descriptor filters. A live
// filter replaces a static filter on the same dimension.
func mergeFilters(static, live []filter.Filter) []filter.Filter {
	if len(static) == 0 && len(live) == 0 {
		return nil
	}
	overridden := make(map[string]bool, len(live))
	for _, f := range live {
		overridden[f.Dimension] = true
	}
	out := make([]filter.Filter, 0, len(static)+len(live))
	for _, f := range static {
		if !overridden[f.Dimension] {
			out = append(out, f)
		}
	}
	return append(out, live...)
}

func joinExpressions(exprs ...string) string {
	var parts []string
	for _, e := range exprs {
		if e = strings.TrimSpace(e); e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) < 2 {
		return strings.Join(parts, "")
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND ")
}

func serverPaging(c descriptor.Chart, qs descriptor.Query, paging *Paging) (*descriptor.OrderBy, *Limit) {
	orderBy := qs.OrderBy
	limit := &Limit{Limit: qs.Limit}
	if limit.Limit == 0 && c.Pagination != nil {
		limit.Limit = c.Pagination.PageSize
	}
	if paging != nil {
		if paging.OrderBy != nil && paging.OrderBy.Name != "" {
			orderBy = paging.OrderBy
		}
		if paging.Limit > 0 {
			limit.Limit = paging.Limit
		}
		limit.Offset = paging.Offset
	}
	if limit.Limit == 0 {
		limit.Limit = DefaultPageSize
	}
	if orderBy != nil && orderBy.Order == "" {
		o := *orderBy
		o.Order = descriptor.Desc
		orderBy = &o
	}
	return orderBy, limit
}
