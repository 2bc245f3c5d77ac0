// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
)

// Assertions provides assertion helpers for dashboard tests.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

func (a *Assertions) fail(format string, args ...any) {
	a.t.Helper()
	a.t.Errorf(format, args...)
	a.failed = true
}

// AssertEqual asserts that two values are deeply equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		a.fail("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertTrue asserts that the value is true.
func (a *Assertions) AssertTrue(value bool, msg string) {
	a.t.Helper()
	if !value {
		a.fail("%s: expected true", msg)
	}
}

// AssertNoError asserts that err is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.fail("%s: unexpected error: %v", msg, err)
	}
}

// AssertErrorCode asserts that err carries code.
func (a *Assertions) AssertErrorCode(err error, code errors.ErrorCode, msg string) {
	a.t.Helper()
	if !errors.HasCode(err, code) {
		a.fail("%s: expected error code %s, got %v", msg, code, err)
	}
}

// QueryAssertions provides assertion helpers for captured queries.
type QueryAssertions struct {
	*Assertions
	q *query.Query
}

// AssertQuery creates query assertions for q.
func (a *Assertions) AssertQuery(q *query.Query) *QueryAssertions {
	a.t.Helper()
	if q == nil {
		a.fail("query is nil")
		return &QueryAssertions{Assertions: a, q: &query.Query{}}
	}
	return &QueryAssertions{Assertions: a, q: q}
}

func (r *QueryAssertions) HasDataSource(ds string) *QueryAssertions {
	r.t.Helper()
	if r.q.DataSource != ds {
		r.fail("expected data source %q, got %q", ds, r.q.DataSource)
	}
	return r
}

func (r *QueryAssertions) HasFields(names ...string) *QueryAssertions {
	r.t.Helper()
	if got := r.q.FieldNames(); !slices.Equal(got, names) {
		r.fail("expected fields %v, got %v", names, got)
	}
	return r
}

// HasFilter asserts a structured filter dimension = value.
func (r *QueryAssertions) HasFilter(dimension, value string) *QueryAssertions {
	r.t.Helper()
	for _, f := range r.q.Filters {
		if f.Dimension == dimension && f.Matcher.Pattern == value {
			return r
		}
	}
	r.fail("expected filter %s=%s in %+v", dimension, value, r.q.Filters)
	return r
}

// HasNoFilter asserts no structured filter on dimension.
func (r *QueryAssertions) HasNoFilter(dimension string) *QueryAssertions {
	r.t.Helper()
	for _, f := range r.q.Filters {
		if f.Dimension == dimension {
			r.fail("unexpected filter on %s: %+v", dimension, f)
		}
	}
	return r
}

// HasExpression asserts the filter expression contains substr.
func (r *QueryAssertions) HasExpression(substr string) *QueryAssertions {
	r.t.Helper()
	if !strings.Contains(r.q.FilterExpression, substr) {
		r.fail("expected filter expression containing %q, got %q", substr, r.q.FilterExpression)
	}
	return r
}

func (r *QueryAssertions) HasInterval(start, end string) *QueryAssertions {
	r.t.Helper()
	if r.q.Interval.StartISO8601 != start || r.q.Interval.EndISO8601 != end {
		r.fail("expected interval %s/%s, got %s/%s", start, end,
			r.q.Interval.StartISO8601, r.q.Interval.EndISO8601)
	}
	return r
}

// HasBucketLength asserts minBucketLength in seconds.
func (r *QueryAssertions) HasBucketLength(seconds int) *QueryAssertions {
	r.t.Helper()
	if r.q.Interval.MinBucketLength != seconds {
		r.fail("expected bucket length %d, got %d", seconds, r.q.Interval.MinBucketLength)
	}
	return r
}

// HasPage asserts the paging of a server-sorted query.
func (r *QueryAssertions) HasPage(offset, limit int) *QueryAssertions {
	r.t.Helper()
	if r.q.Limit == nil || r.q.Limit.Offset != offset || r.q.Limit.Limit != limit {
		r.fail("expected page %d+%d, got %+v", offset, limit, r.q.Limit)
	}
	return r
}

// OptionAssertions provides assertion helpers for rendered chart options.
type OptionAssertions struct {
	*Assertions
	o chart.Option
}

// AssertOption creates option assertions for o.
func (a *Assertions) AssertOption(o chart.Option) *OptionAssertions {
	return &OptionAssertions{Assertions: a, o: o}
}

func (r *OptionAssertions) HasSeriesCount(n int) *OptionAssertions {
	r.t.Helper()
	if len(r.o.Series) != n {
		r.fail("expected %d series, got %d", n, len(r.o.Series))
	}
	return r
}

func (r *OptionAssertions) HasSeriesNamed(name string) *OptionAssertions {
	r.t.Helper()
	for _, s := range r.o.Series {
		if s.Name == name {
			return r
		}
	}
	r.fail("expected a series named %q", name)
	return r
}

// HasBuckets asserts the x axis labels and every series hold n points.
func (r *OptionAssertions) HasBuckets(n int) *OptionAssertions {
	r.t.Helper()
	if len(r.o.XAxis.Data) != n {
		r.fail("expected %d x axis labels, got %d", n, len(r.o.XAxis.Data))
	}
	for _, s := range r.o.Series {
		if len(s.Data) != n {
			r.fail("series %s: expected %d points, got %d", s.Name, n, len(s.Data))
		}
	}
	return r
}

func (r *OptionAssertions) HasHint(substr string) *OptionAssertions {
	r.t.Helper()
	if !strings.Contains(r.o.Hint, substr) {
		r.fail("expected hint containing %q, got %q", substr, r.o.Hint)
	}
	return r
}

// RequireNoError stops the test on err.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
