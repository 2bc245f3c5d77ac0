// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package widget defines the chart and table collaborators driven by the
// dashboard controller, with headless in-memory implementations.
package widget

import (
	"context"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/query"
)

// ErrDisposed is returned by operations on a disposed widget.
var ErrDisposed = kerrors.New(kerrors.CodeContextLost, "widget disposed", nil)

// BrushEvent is emitted when a range of buckets is selected. Cleared is set
// when the selection is removed.
type BrushEvent struct {
	SeriesID   string
	StartIndex int
	EndIndex   int
	Cleared    bool
}

// ClickEvent is emitted when a bucket is clicked.
type ClickEvent struct {
	SeriesID  string
	DataIndex int
}

// Chart is a plotting widget.
type Chart interface {
	SetOption(p chart.Patch) error
	GetOption() chart.Option
	Resize(width, height int)
	Dispose()
	Disposed() bool
	// OnBrush and OnClick register listeners and return a func that removes
	// them.
	OnBrush(fn func(BrushEvent)) func()
	OnClick(fn func(ClickEvent)) func()
}

// Fetcher loads one page of rows.
type Fetcher func(ctx context.Context, p query.Paging) (*query.RowsResponse, error)

// LoadRequest configures a table load.
type LoadRequest struct {
	// URL identifies the row source, for display and logs.
	URL string
	// Fetch issues the row query. It plays the part of ajaxData plus transport.
	Fetch Fetcher
	// ResponseHandler optionally rewrites each page before it is shown.
	ResponseHandler func(*query.RowsResponse) *query.RowsResponse
}

// Table is a paginated table widget.
type Table interface {
	Load(ctx context.Context, req LoadRequest) error
	Refresh(ctx context.Context) error
	Clear()
	Show()
	Hide()
	Visible() bool
	Dispose()
	Disposed() bool
}

// Factory creates widgets for chart descriptors.
type Factory interface {
	NewChart(c descriptor.Chart) Chart
	NewTable(c descriptor.Chart) Table
}
