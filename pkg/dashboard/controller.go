// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard orchestrates one dashboard page.
//
// A Controller owns the page's filter.State and one Widget per chart
// descriptor. Every filter or interval change, the auto-refresh ticker and
// explicit Refresh calls re-evaluate each widget's precondition and issue
// one independent query per widget. Responses are merged through the
// widget's series.Set and applied to its chart, or loaded into its table.
// A failing widget shows the error inline and never affects its siblings.
//
// Drill-down follows the chart events: a brush on a chart with details
// loads the drill-down table for the exact brushed range, a click on a
// zoomable chart replaces the page interval, and popups open short-lived
// charts that are disposed with their listeners when closed.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/events"
	"github.com/jllopis/kairos-console/pkg/filter"
	"github.com/jllopis/kairos-console/pkg/format"
	"github.com/jllopis/kairos-console/pkg/query"
	"github.com/jllopis/kairos-console/pkg/series"
	"github.com/jllopis/kairos-console/pkg/telemetry"
	"github.com/jllopis/kairos-console/pkg/widget"
)

// Backend answers widget queries.
type Backend interface {
	QueryTimeSeries(ctx context.Context, q *query.Query) (*query.TimeSeriesResponse, error)
	QueryRows(ctx context.Context, q *query.Query) (*query.RowsResponse, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithFilterState uses an existing filter state, for example one restored
// from URL parameters.
func WithFilterState(s *filter.State) Option {
	return func(c *Controller) {
		if s != nil {
			c.filters = s
		}
	}
}

// WithCascade sets the cascading reset policy used when the dashboard
// descriptor declares none.
func WithCascade(policy filter.CascadePolicy) Option {
	return func(c *Controller) {
		c.cascade = policy
	}
}

func WithBuilder(b *query.Builder) Option {
	return func(c *Controller) {
		if b != nil {
			c.builder = b
		}
	}
}

// WithFactory sets the widget factory. The default creates headless widgets.
func WithFactory(f widget.Factory) Option {
	return func(c *Controller) {
		if f != nil {
			c.factory = f
		}
	}
}

func WithEmitter(e events.Emitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.emitter = e
		}
	}
}

func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSequencing sets the policy applied to concurrent responses of one
// widget.
func WithSequencing(s Sequencing) Option {
	return func(c *Controller) {
		if s != "" {
			c.sequencing = s
		}
	}
}

// WithClock sets the clock used to resolve relative intervals.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFormats renders x axis bucket labels with the short date-time format
// of r, so labels follow its location.
func WithFormats(r *format.Registry) Option {
	return func(c *Controller) {
		if r != nil {
			c.seriesOpts = append(c.seriesOpts, series.WithLabelFormat(r.Get(format.ShortDateTime)))
		}
	}
}

// WithAutoRefresh sets the auto-refresh period started by Load. Zero
// disables the ticker.
func WithAutoRefresh(period time.Duration) Option {
	return func(c *Controller) {
		c.period = period
	}
}

// Controller drives the widgets of one dashboard.
type Controller struct {
	dash       *descriptor.Dashboard
	backend    Backend
	filters    *filter.State
	cascade    filter.CascadePolicy
	builder    *query.Builder
	factory    widget.Factory
	emitter    events.Emitter
	metrics    *telemetry.QueryMetrics
	logger     *slog.Logger
	tracer     trace.Tracer
	sequencing Sequencing
	seriesOpts []series.Option
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	widgets    []*Widget
	byID       map[string]*Widget
	popups     map[string]*Popup
	rounds     int64
	period     time.Duration
	stopTicker func()
	closed     bool

	unsubscribe func()
	// inflight tracks widget loads and drill-downs; ticker tracks the
	// auto-refresh goroutine.
	inflight sync.WaitGroup
	ticker   sync.WaitGroup
}

// New creates a controller with one widget per chart of dash.
func New(dash *descriptor.Dashboard, backend Backend, opts ...Option) (*Controller, error) {
	if dash == nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "nil dashboard", nil)
	}
	if backend == nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "nil backend", nil).
			WithContext("dashboard", dash.Name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		dash:       dash,
		backend:    backend,
		factory:    widget.NewHeadlessFactory(nil),
		emitter:    events.Noop{},
		logger:     slog.Default().With("component", "dashboard"),
		tracer:     otel.Tracer("kairos-console/dashboard"),
		sequencing: LastResolved,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		byID:       make(map[string]*Widget),
		popups:     make(map[string]*Popup),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.filters == nil {
		c.filters = filter.New()
	}
	if c.builder == nil {
		c.builder = query.NewBuilder(query.WithClock(c.now))
	}
	switch {
	case len(dash.Cascade) > 0:
		c.filters.SetCascade(dash.Cascade)
	case len(c.cascade) > 0:
		c.filters.SetCascade(c.cascade)
	}

	for _, ch := range dash.Charts {
		if _, dup := c.byID[ch.ID]; dup || ch.ID == "" {
			cancel()
			return nil, kerrors.New(kerrors.CodeInvalidDescriptor, "chart ids must be unique and non-empty", nil).
				WithContext("dashboard", dash.Name).
				WithContext("chart", ch.ID)
		}
		w := newWidget(ctx, ch, c.factory, c.seriesOpts...)
		c.wire(w)
		c.widgets = append(c.widgets, w)
		c.byID[ch.ID] = w
	}
	c.unsubscribe = c.filters.Subscribe(c.onChange)
	return c, nil
}

// wire subscribes the controller to the chart events of w.
func (c *Controller) wire(w *Widget) {
	if w.plot == nil {
		return
	}
	if w.details != nil {
		w.listen(w.plot.OnBrush(func(ev widget.BrushEvent) {
			c.async(w, func(ctx context.Context) {
				if err := c.Brush(ctx, w.ID(), ev); err != nil {
					c.logger.WarnContext(ctx, "dashboard.brush.error",
						slog.String("widget_id", w.ID()),
						slog.String("error", err.Error()),
					)
				}
			})
		}))
	}
	if w.chart.ZoomOnTime {
		w.listen(w.plot.OnClick(func(ev widget.ClickEvent) {
			if _, err := c.Zoom(w.ctx, w.ID(), ev); err != nil {
				c.logger.WarnContext(w.ctx, "dashboard.zoom.error",
					slog.String("widget_id", w.ID()),
					slog.String("error", err.Error()),
				)
			}
		}))
	}
}

// async runs fn on its own goroutine bound to the widget context.
func (c *Controller) async(w *Widget, fn func(ctx context.Context)) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn(w.ctx)
	}()
}

// Name returns the dashboard name.
func (c *Controller) Name() string { return c.dash.Name }

// Dashboard returns the descriptor driven by the controller.
func (c *Controller) Dashboard() *descriptor.Dashboard { return c.dash }

// Filters returns the filter state owned by the controller.
func (c *Controller) Filters() *filter.State { return c.filters }

// Widgets returns the widgets in descriptor order.
func (c *Controller) Widgets() []*Widget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.widgets)
}

// Widget returns the widget rendering the chart id.
func (c *Controller) Widget(id string) (*Widget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.byID[id]
	return w, ok
}

func (c *Controller) widget(id string) (*Widget, error) {
	w, ok := c.Widget(id)
	if !ok {
		return nil, kerrors.New(kerrors.CodeNotFound, "unknown widget", nil).
			WithContext("dashboard", c.dash.Name).
			WithContext("widget", id)
	}
	return w, nil
}

// Views returns a snapshot of every widget.
func (c *Controller) Views() []View {
	widgets := c.Widgets()
	out := make([]View, 0, len(widgets))
	for _, w := range widgets {
		out = append(out, w.View())
	}
	return out
}

// Load renders every widget once, starts the auto-refresh ticker and waits
// for the first round of queries.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return kerrors.New(kerrors.CodeContextLost, "dashboard closed", nil).
			WithContext("dashboard", c.dash.Name)
	}
	period := c.period
	c.mu.Unlock()

	round := c.refresh(ctx, "load")
	c.SetAutoRefresh(period)
	return waitRound(ctx, round)
}

// Refresh re-queries every widget and waits until each one settled.
func (c *Controller) Refresh(ctx context.Context) error {
	return waitRound(ctx, c.refresh(ctx, "manual"))
}

// Wait blocks until every in-flight widget load and drill-down finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func waitRound(ctx context.Context, round *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		round.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return kerrors.New(kerrors.CodeTimeout, "refresh interrupted", ctx.Err())
	}
}

// SetAutoRefresh replaces the auto-refresh period. Each tick triggers a
// full refresh; a tick does not wait for the previous round.
func (c *Controller) SetAutoRefresh(period time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
	c.period = period
	if period <= 0 || c.closed {
		return
	}
	ticker := time.NewTicker(period)
	done := make(chan struct{})
	c.stopTicker = func() {
		ticker.Stop()
		close(done)
	}
	c.ticker.Add(1)
	go func() {
		defer c.ticker.Done()
		for {
			select {
			case <-done:
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.refresh(c.ctx, "timer")
			}
		}
	}()
	c.logger.Debug("dashboard.autorefresh",
		slog.String("dashboard", c.dash.Name),
		slog.Duration("period", period),
	)
}

// AutoRefresh returns the current auto-refresh period.
func (c *Controller) AutoRefresh() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

func (c *Controller) onChange(ch filter.Change) {
	switch ch.Kind {
	case filter.IntervalChanged:
		c.emit(c.ctx, events.EventIntervalChanged, "", map[string]any{"interval": ch.Interval.String()})
	default:
		payload := map[string]any{"kind": ch.Kind.String()}
		if ch.Key != "" {
			payload["key"] = ch.Key
		}
		if ch.Filter != nil {
			payload["value"] = ch.Filter.Matcher.Pattern
		}
		if len(ch.Cascaded) > 0 {
			payload["cascaded"] = ch.Cascaded
		}
		c.emit(c.ctx, events.EventFilterChanged, "", payload)
	}
	c.refresh(c.ctx, ch.Kind.String())
}

// refresh dispatches one query per widget and returns the round's wait
// group. Widgets whose precondition is unmet move to AwaitingPrecondition
// synchronously.
func (c *Controller) refresh(ctx context.Context, reason string) *sync.WaitGroup {
	var round sync.WaitGroup
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &round
	}
	c.rounds++
	id := c.rounds
	widgets := slices.Clone(c.widgets)
	c.mu.Unlock()

	snap := c.filters.Snapshot()
	ctx = telemetry.WithLogAttrs(ctx, slog.String("dashboard", c.dash.Name), slog.Int64("refresh", id))
	ctx, span := c.tracer.Start(ctx, "dashboard.refresh", trace.WithAttributes(
		attribute.String(telemetry.AttrDashboard, c.dash.Name),
		attribute.Int64(telemetry.AttrRefreshID, id),
		attribute.Int(telemetry.AttrRefreshSize, len(widgets)),
		attribute.String("console.refresh.reason", reason),
	))
	c.emit(ctx, events.EventRefreshStarted, "", map[string]any{
		"refresh": id,
		"reason":  reason,
		"widgets": len(widgets),
	})

	for _, w := range widgets {
		c.dispatch(ctx, &round, w, snap)
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		round.Wait()
		c.emit(ctx, events.EventRefreshCompleted, "", map[string]any{"refresh": id, "reason": reason})
		span.End()
	}()
	return &round
}

func (c *Controller) dispatch(ctx context.Context, round *sync.WaitGroup, w *Widget, snap filter.Snapshot) {
	if missing := snap.Missing(w.chart.Precondition); len(missing) > 0 {
		if from, changed := w.await(missing); changed {
			c.transition(ctx, w, from, AwaitingPrecondition)
		}
		return
	}
	seq, from, ok := w.begin()
	if !ok {
		return
	}
	c.transition(ctx, w, from, Loading)

	round.Add(1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer round.Done()
		c.load(ctx, w, seq, snap)
	}()
}

// load runs request seq of w. The query is canceled when either the refresh
// context or the widget context ends.
func (c *Controller) load(ctx context.Context, w *Widget, seq uint64, snap filter.Snapshot) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	ctx = telemetry.WithLogAttrs(ctx, slog.String("widget_id", w.ID()))
	ctx, span := c.tracer.Start(ctx, "dashboard.widget",
		trace.WithAttributes(telemetry.WidgetAttributes(c.dash.Name, w.ID(), string(w.chart.Type))...))
	defer span.End()

	var err error
	switch {
	case w.chart.Invalid != "":
		err = kerrors.New(kerrors.CodeInvalidDescriptor, "unreadable chart descriptor", errors.New(w.chart.Invalid)).
			WithContext("dashboard", c.dash.Name)
	case w.table != nil:
		err = c.loadTable(ctx, span, w, seq, snap)
	default:
		err = c.loadChart(ctx, span, w, seq, snap)
	}
	if err == nil {
		return
	}
	if errors.Is(err, errDiscarded) || w.ctx.Err() != nil {
		span.AddEvent("discarded")
		c.logger.DebugContext(ctx, "dashboard.widget.discarded", slog.Uint64("request", seq))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	from, ferr := w.fail(seq, c.sequencing, err)
	if ferr != nil {
		return
	}
	ce := kerrors.AsConsoleError(err)
	c.logger.WarnContext(ctx, "dashboard.widget.failed",
		slog.String("error_code", string(ce.Code)),
		slog.String("error", err.Error()),
	)
	c.transition(ctx, w, from, Failed)
	c.emit(ctx, events.EventWidgetFailed, w.ID(), map[string]any{
		"code":        string(ce.Code),
		"error":       err.Error(),
		"recoverable": ce.Recoverable,
	})
}

func (c *Controller) loadChart(ctx context.Context, span trace.Span, w *Widget, seq uint64, snap filter.Snapshot) error {
	q, err := c.builder.Build(w.chart, snap, nil)
	if err != nil {
		return err
	}
	span.SetAttributes(queryAttributes(q)...)
	resp, err := c.backend.QueryTimeSeries(ctx, q)
	if err != nil {
		return err
	}
	from, err := w.commit(seq, c.sequencing, func() error {
		res, err := w.set.Merge(resp, series.RequestFor(q), series.Auto)
		if err != nil {
			return err
		}
		span.SetAttributes(telemetry.MergeAttributes(res.Mode.String(), len(res.Patch.Series))...)
		return w.plot.SetOption(res.Patch)
	})
	if err != nil {
		return err
	}
	c.transition(ctx, w, from, Rendered)
	return nil
}

func (c *Controller) loadTable(ctx context.Context, span trace.Span, w *Widget, seq uint64, snap filter.Snapshot) error {
	fetch := func(ctx context.Context, p query.Paging) (*query.RowsResponse, error) {
		q, err := c.builder.Build(w.chart, snap, &p)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(queryAttributes(q)...)
		resp, err := c.backend.QueryRows(ctx, q)
		if err != nil {
			return nil, err
		}
		if !w.current(seq, c.sequencing) {
			return nil, errDiscarded
		}
		return resp, nil
	}
	req := widget.LoadRequest{URL: sourceURL(w.chart), Fetch: fetch}
	if err := w.table.Load(ctx, req); err != nil {
		return err
	}
	from, err := w.commit(seq, c.sequencing, func() error {
		w.table.Show()
		return nil
	})
	if err != nil {
		return err
	}
	c.transition(ctx, w, from, Rendered)
	return nil
}

func sourceURL(ch descriptor.Chart) string {
	return string(ch.Query.Type) + ":" + ch.Query.DataSource
}

func queryAttributes(q *query.Query) []attribute.KeyValue {
	filterText := q.FilterExpression
	if filterText == "" && len(q.Filters) > 0 {
		filterText = filter.Snapshot{Filters: q.Filters}.ToFilterExpression()
	}
	return telemetry.QueryAttributes(q.DataSource, string(q.Type), q.FieldNames(), filterText,
		q.Interval.StartISO8601, q.Interval.EndISO8601, q.Interval.MinBucketLength)
}

// transition records a widget state change.
func (c *Controller) transition(ctx context.Context, w *Widget, from, to State) {
	if from == to {
		return
	}
	c.metrics.RecordWidgetState(ctx, c.dash.Name, to.String())
	c.emit(ctx, events.EventWidgetState, w.ID(), map[string]any{
		"from":  from.String(),
		"state": to.String(),
	})
}

func (c *Controller) emit(ctx context.Context, t events.EventType, widgetID string, payload map[string]any) {
	c.emitter.Emit(ctx, events.New(t, c.dash.Name, widgetID, payload))
}

// Close disposes every widget and popup, stops the ticker and waits for
// the in-flight queries to observe their cancellation.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
	widgets := slices.Clone(c.widgets)
	popups := make([]*Popup, 0, len(c.popups))
	for _, p := range c.popups {
		popups = append(popups, p)
	}
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	for _, p := range popups {
		p.Close()
	}
	for _, w := range widgets {
		if from, ok := w.dispose(); ok {
			c.transition(c.ctx, w, from, Disposed)
		}
	}
	c.cancel()
	c.ticker.Wait()
	c.inflight.Wait()
}
