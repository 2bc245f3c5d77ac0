// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package widget

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/format"
	"github.com/jllopis/kairos-console/pkg/query"
)

// EmptyText is shown by a loaded table without rows.
const EmptyText = "No matching records found"

// HeadlessTable keeps one page of rows in memory.
type HeadlessTable struct {
	mu       sync.Mutex
	chart    descriptor.Chart
	formats  *format.Registry
	req      *LoadRequest
	paging   query.Paging
	rows     []map[string]any
	total    int
	loaded   bool
	visible  bool
	disposed bool
}

// NewHeadlessTable creates a hidden, empty table for c.
func NewHeadlessTable(c descriptor.Chart, formats *format.Registry) *HeadlessTable {
	if formats == nil {
		formats = format.Default
	}
	pageSize := query.DefaultPageSize
	if c.Pagination != nil && c.Pagination.PageSize > 0 {
		pageSize = c.Pagination.PageSize
	}
	return &HeadlessTable{chart: c, formats: formats, paging: query.Paging{Limit: pageSize}}
}

// Load sets the row source and fetches the first page.
func (t *HeadlessTable) Load(ctx context.Context, req LoadRequest) error {
	if req.Fetch == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "table load without fetcher", nil).
			WithContext("table", t.chart.ID)
	}
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	t.req = &req
	t.paging.Offset = 0
	t.mu.Unlock()
	return t.Refresh(ctx)
}

// Refresh refetches the current page.
func (t *HeadlessTable) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return ErrDisposed
	}
	if t.req == nil {
		t.mu.Unlock()
		return nil
	}
	req, paging := *t.req, t.paging
	t.mu.Unlock()

	resp, err := req.Fetch(ctx, paging)
	if err != nil {
		return err
	}
	if req.ResponseHandler != nil {
		resp = req.ResponseHandler(resp)
	}
	if resp == nil {
		resp = &query.RowsResponse{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrDisposed
	}
	t.rows = resp.Rows
	t.total = resp.Total
	t.loaded = true
	if !t.chart.ServerSorted() && paging.OrderBy != nil {
		t.sortLocked(*paging.OrderBy)
	}
	return nil
}

// Page moves to the page starting at offset.
func (t *HeadlessTable) Page(ctx context.Context, offset int) error {
	t.mu.Lock()
	t.paging.Offset = max(offset, 0)
	t.mu.Unlock()
	return t.Refresh(ctx)
}

// Sort orders the table by column. Server sorted tables refetch with the new
// order; others sort the loaded rows in place.
func (t *HeadlessTable) Sort(ctx context.Context, column string, order descriptor.Order) error {
	ob := descriptor.OrderBy{Name: column, Order: order}
	t.mu.Lock()
	t.paging.OrderBy = &ob
	if !t.chart.ServerSorted() {
		t.sortLocked(ob)
		t.mu.Unlock()
		return nil
	}
	t.paging.Offset = 0
	t.mu.Unlock()
	return t.Refresh(ctx)
}

func (t *HeadlessTable) sortLocked(ob descriptor.OrderBy) {
	slices.SortStableFunc(t.rows, func(a, b map[string]any) int {
		c := compareValues(a[ob.Name], b[ob.Name])
		if ob.Order == descriptor.Desc {
			return -c
		}
		return c
	})
}

func compareValues(a, b any) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Clear drops the loaded rows and the row source.
func (t *HeadlessTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	t.total = 0
	t.loaded = false
	t.req = nil
	t.paging.Offset = 0
}

func (t *HeadlessTable) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible = true
}

func (t *HeadlessTable) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible = false
}

func (t *HeadlessTable) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

func (t *HeadlessTable) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	t.rows = nil
	t.req = nil
}

func (t *HeadlessTable) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Rows returns the loaded page and the total row count.
func (t *HeadlessTable) Rows() ([]map[string]any, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.rows), t.total
}

// Paging returns the current paging state.
func (t *HeadlessTable) Paging() query.Paging {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paging
}

// Render returns the column titles and the formatted rows. A loaded table
// without rows renders EmptyText as its only cell.
func (t *HeadlessTable) Render() ([]string, [][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	header := make([]string, len(t.chart.Columns))
	for i, col := range t.chart.Columns {
		header[i] = col.DisplayTitle()
	}
	if t.loaded && len(t.rows) == 0 {
		return header, [][]string{{EmptyText}}
	}
	out := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		cells := make([]string, len(t.chart.Columns))
		for i, col := range t.chart.Columns {
			cells[i] = t.formats.Value(col.Format, row[col.Name])
		}
		out = append(out, cells)
	}
	return header, out
}
