// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/filter"
	"github.com/jllopis/kairos-console/pkg/series"
	"github.com/jllopis/kairos-console/pkg/widget"
)

// errDiscarded marks a response that arrived for a disposed widget or was
// superseded by a newer one.
var errDiscarded = errors.New("dashboard: response discarded")

// Widget is one chart or table of a dashboard together with its rendered
// state. Exactly one of the chart and table collaborators is set.
type Widget struct {
	chart   descriptor.Chart
	plot    widget.Chart
	table   widget.Table
	details widget.Table
	set     *series.Set

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	hint  string
	err   error
	// issued numbers requests; applied is the newest request rendered.
	// Requests at or below floor were invalidated by a precondition reset.
	issued  uint64
	applied uint64
	floor   uint64

	unsubscribe []func()
}

func newWidget(parent context.Context, c descriptor.Chart, f widget.Factory, opts ...series.Option) *Widget {
	ctx, cancel := context.WithCancel(parent)
	w := &Widget{chart: c, ctx: ctx, cancel: cancel}
	if c.IsTable() {
		w.table = f.NewTable(c)
		return w
	}
	w.plot = f.NewChart(c)
	w.set = series.NewSet(c, opts...)
	if c.Details != nil && c.Details.Query != nil {
		w.details = f.NewTable(detailsChart(c))
	}
	return w
}

func detailsChart(c descriptor.Chart) descriptor.Chart {
	return descriptor.Chart{
		ID:         c.ID + "-details",
		Type:       descriptor.TypeTable,
		Title:      c.Title,
		DataSource: c.Details.Query.DataSource,
		Query:      *c.Details.Query,
		Columns:    c.Details.Columns,
		Pagination: &descriptor.Pagination{Server: true},
	}
}

func (w *Widget) ID() string { return w.chart.ID }

// Chart returns the descriptor the widget renders.
func (w *Widget) Chart() descriptor.Chart { return w.chart }

// Plot returns the chart collaborator, nil for tables.
func (w *Widget) Plot() widget.Chart { return w.plot }

// Table returns the table collaborator, nil for charts.
func (w *Widget) Table() widget.Table { return w.table }

// Details returns the drill-down table, nil when the chart declares none.
func (w *Widget) Details() widget.Table { return w.details }

func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Hint returns the message shown instead of the data, if any.
func (w *Widget) Hint() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hint
}

// Err returns the error of the last failed query.
func (w *Widget) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Series returns the rendered series of a chart widget.
func (w *Widget) Series() []series.Series {
	if w.set == nil {
		return nil
	}
	return w.set.Series()
}

func (w *Widget) Disposed() bool {
	return w.State() == Disposed
}

// View is a serializable snapshot of a widget.
type View struct {
	ID     string               `json:"id"`
	Title  string               `json:"title,omitempty"`
	Type   descriptor.ChartType `json:"type"`
	State  State                `json:"state"`
	Hint   string               `json:"hint,omitempty"`
	Error  string               `json:"error,omitempty"`
	Option *chart.Option        `json:"option,omitempty"`
}

// View returns the current snapshot of the widget.
func (w *Widget) View() View {
	w.mu.Lock()
	v := View{ID: w.chart.ID, Title: w.chart.Title, Type: w.chart.Type, State: w.state, Hint: w.hint}
	if w.err != nil {
		v.Error = w.err.Error()
	}
	w.mu.Unlock()
	if w.plot != nil && v.State != Disposed {
		opt := w.plot.GetOption()
		v.Option = &opt
	}
	return v
}

// begin numbers a new request and enters Loading.
func (w *Widget) begin() (seq uint64, from State, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Disposed {
		return 0, Disposed, false
	}
	from = w.state
	w.issued++
	w.state = Loading
	return w.issued, from, true
}

func (w *Widget) acceptLocked(seq uint64, policy Sequencing) bool {
	if w.state == Disposed || seq <= w.floor {
		return false
	}
	if policy == LatestIssued && seq < w.applied {
		return false
	}
	return true
}

// current reports whether a response to request seq may still be rendered.
func (w *Widget) current(seq uint64, policy Sequencing) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acceptLocked(seq, policy)
}

// commit renders the response to request seq through apply and enters
// Rendered. It returns errDiscarded when the response is stale.
func (w *Widget) commit(seq uint64, policy Sequencing, apply func() error) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.acceptLocked(seq, policy) {
		return w.state, errDiscarded
	}
	if apply != nil {
		if err := apply(); err != nil {
			return w.state, err
		}
	}
	from := w.state
	w.applied = max(w.applied, seq)
	w.state = Rendered
	w.hint = ""
	w.err = nil
	return from, nil
}

// fail shows err inline and enters Failed.
func (w *Widget) fail(seq uint64, policy Sequencing, err error) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.acceptLocked(seq, policy) {
		return w.state, errDiscarded
	}
	from := w.state
	w.state = Failed
	w.err = err
	w.hint = failureHint(err)
	if w.plot != nil {
		_ = w.plot.SetOption(chart.Patch{Option: chart.Option{Hint: w.hint}})
	}
	return from, nil
}

// await invalidates in-flight requests, drops the rendered data and shows
// the precondition hint.
func (w *Widget) await(missing []string) (State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Disposed {
		return Disposed, false
	}
	from := w.state
	w.floor = w.issued
	w.state = AwaitingPrecondition
	w.hint = preconditionHint(missing)
	w.err = nil
	if w.set != nil {
		w.set.Reset()
	}
	if w.plot != nil {
		_ = w.plot.SetOption(chart.Patch{NotMerge: true, Option: chart.Option{Hint: w.hint}})
	}
	if w.table != nil {
		w.table.Clear()
		w.table.Hide()
	}
	if w.details != nil {
		w.details.Clear()
		w.details.Hide()
	}
	return from, from != AwaitingPrecondition
}

// dispose cancels in-flight requests and releases the collaborators.
func (w *Widget) dispose() (State, bool) {
	w.mu.Lock()
	if w.state == Disposed {
		w.mu.Unlock()
		return Disposed, false
	}
	from := w.state
	w.state = Disposed
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	w.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	if w.plot != nil {
		w.plot.Dispose()
	}
	if w.table != nil {
		w.table.Dispose()
	}
	if w.details != nil {
		w.details.Dispose()
	}
	if w.set != nil {
		w.set.Reset()
	}
	return from, true
}

func (w *Widget) listen(unsubscribe ...func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsubscribe = append(w.unsubscribe, unsubscribe...)
}

func preconditionHint(missing []string) string {
	dims := make([]string, 0, len(missing))
	for _, key := range missing {
		dims = append(dims, filter.DimensionOf(key))
	}
	return "select " + strings.Join(dims, ", ") + " to load"
}

func failureHint(err error) string {
	var ce *kerrors.ConsoleError
	if !errors.As(err, &ce) {
		return "failed to load data: " + err.Error()
	}
	if ce.Recoverable {
		return "data temporarily unavailable: " + ce.Message
	}
	return "failed to load data: " + ce.Message
}
