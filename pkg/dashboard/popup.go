// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/events"
	"github.com/jllopis/kairos-console/pkg/interval"
	"github.com/jllopis/kairos-console/pkg/series"
	"github.com/jllopis/kairos-console/pkg/widget"
)

// Popup is a short-lived chart opened over a fixed absolute range. Closing
// it disposes the chart and drops its listeners; responses arriving after
// Close are discarded.
type Popup struct {
	id     string
	parent string
	ctrl   *Controller
	chart  descriptor.Chart
	plot   widget.Chart
	set    *series.Set

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	rng         interval.Range
	closed      bool
	comparisons map[string]*comparison
	unsubscribe []func()
}

type comparison struct {
	remove func() chart.Patch
}

// OpenPopup opens a popup rendering the chart of widgetID over r. A brush
// inside the popup narrows it to the brushed range.
func (c *Controller) OpenPopup(ctx context.Context, widgetID string, r interval.Range) (*Popup, error) {
	w, err := c.widget(widgetID)
	if err != nil {
		return nil, err
	}
	if w.plot == nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "tables cannot open popups", nil).
			WithContext("widget", widgetID)
	}
	if !r.Valid() {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "empty popup range", nil).
			WithContext("widget", widgetID).
			WithContext("range", r.String())
	}

	pc := w.chart
	pc.ID = uuid.NewString()
	pctx, cancel := context.WithCancel(c.ctx)
	p := &Popup{
		id:          pc.ID,
		parent:      widgetID,
		ctrl:        c,
		chart:       pc,
		plot:        c.factory.NewChart(pc),
		set:         series.NewSet(pc, c.seriesOpts...),
		ctx:         pctx,
		cancel:      cancel,
		rng:         r,
		comparisons: make(map[string]*comparison),
	}
	p.unsubscribe = append(p.unsubscribe, p.plot.OnBrush(func(ev widget.BrushEvent) {
		if ev.Cleared {
			return
		}
		s, ok := p.set.Lookup(ev.SeriesID)
		if !ok {
			if s, ok = p.set.First(); !ok {
				return
			}
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			if err := p.SetRange(p.ctx, s.Interval(ev.StartIndex, ev.EndIndex)); err != nil {
				c.logger.DebugContext(p.ctx, "dashboard.popup.range.error",
					slog.String("popup_id", p.id),
					slog.String("error", err.Error()),
				)
			}
		}()
	}))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.Close()
		return nil, kerrors.New(kerrors.CodeContextLost, "dashboard closed", nil).
			WithContext("dashboard", c.dash.Name)
	}
	c.popups[p.id] = p
	c.mu.Unlock()

	c.emit(ctx, events.EventPopupOpened, widgetID, map[string]any{
		"popup": p.id,
		"start": r.StartISO8601(),
		"end":   r.EndISO8601(),
	})
	if err := p.load(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Popup returns an open popup by id.
func (c *Controller) Popup(id string) (*Popup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.popups[id]
	return p, ok
}

// Popups returns the number of open popups.
func (c *Controller) Popups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.popups)
}

func (p *Popup) ID() string { return p.id }

// Parent returns the id of the widget the popup was opened from.
func (p *Popup) Parent() string { return p.parent }

func (p *Popup) Plot() widget.Chart { return p.plot }

func (p *Popup) Series() []series.Series { return p.set.Series() }

func (p *Popup) Range() interval.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng
}

func (p *Popup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetRange reloads the popup over r. Comparison lines are dropped.
func (p *Popup) SetRange(ctx context.Context, r interval.Range) error {
	if !r.Valid() {
		return kerrors.New(kerrors.CodeInvalidInput, "empty popup range", nil).
			WithContext("popup", p.id)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errPopupClosed(p.id)
	}
	p.rng = r
	for _, cmp := range p.comparisons {
		cmp.remove()
	}
	clear(p.comparisons)
	p.mu.Unlock()
	return p.load(ctx)
}

func (p *Popup) load(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	r := p.Range()
	q, err := p.ctrl.builder.BuildRange(p.chart, p.ctrl.filters.Snapshot(), r, nil)
	if err != nil {
		return err
	}
	resp, err := p.ctrl.backend.QueryTimeSeries(ctx, q)
	if err != nil {
		return p.show(err)
	}
	return p.apply(func() (chart.Patch, error) {
		res, err := p.set.Merge(resp, series.RequestFor(q), series.Replace)
		return res.Patch, err
	})
}

// Compare adds the chart's series shifted back by offset as a new group
// labeled label, and returns a func removing exactly that group. An empty
// label is derived from the offset.
func (p *Popup) Compare(ctx context.Context, offset time.Duration, label string) (func() error, error) {
	if offset <= 0 {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "comparison offset must be positive", nil).
			WithContext("popup", p.id)
	}
	if label == "" {
		label = ComparisonLabel(offset)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	r := p.Range()
	shifted := interval.Range{Start: r.Start.Add(-offset), End: r.End.Add(-offset)}
	q, err := p.ctrl.builder.BuildRange(p.chart, p.ctrl.filters.Snapshot(), shifted, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.ctrl.backend.QueryTimeSeries(ctx, q)
	if err != nil {
		return nil, err
	}

	cmp := &comparison{}
	err = p.apply(func() (chart.Patch, error) {
		req := series.RequestFor(q)
		req.Prefix = label
		res, err := p.set.Merge(resp, req, series.Append)
		if err != nil {
			return chart.Patch{}, err
		}
		cmp.remove = res.Remove
		p.comparisons[label] = cmp
		return res.Patch, nil
	})
	if err != nil {
		return nil, err
	}
	return func() error { return p.removeComparison(label, cmp) }, nil
}

// Comparisons returns the labels of the comparison groups shown.
func (p *Popup) Comparisons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.comparisons))
	for label := range p.comparisons {
		out = append(out, label)
	}
	return out
}

// removeComparison drops cmp if it is still the group shown under label.
func (p *Popup) removeComparison(label string, cmp *comparison) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPopupClosed(p.id)
	}
	if p.comparisons[label] != cmp {
		return nil
	}
	delete(p.comparisons, label)
	return p.plot.SetOption(cmp.remove())
}

// apply renders a patch unless the popup was closed meanwhile.
func (p *Popup) apply(patch func() (chart.Patch, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPopupClosed(p.id)
	}
	pt, err := patch()
	if err != nil {
		return err
	}
	return p.plot.SetOption(pt)
}

func (p *Popup) show(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		_ = p.plot.SetOption(chart.Patch{Option: chart.Option{Hint: failureHint(err)}})
	}
	return err
}

// Close disposes the popup chart and drops its listeners. It is safe to
// call more than once.
func (p *Popup) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	clear(p.comparisons)
	p.mu.Unlock()

	p.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	p.plot.Dispose()
	p.set.Reset()

	c := p.ctrl
	c.mu.Lock()
	delete(c.popups, p.id)
	c.mu.Unlock()
	c.emit(c.ctx, events.EventPopupClosed, p.parent, map[string]any{"popup": p.id})
}

func errPopupClosed(id string) error {
	return kerrors.New(kerrors.CodeContextLost, "popup closed", nil).WithContext("popup", id)
}

// ComparisonLabel is the default label of a comparison shifted by offset,
// such as "1d ago".
func ComparisonLabel(offset time.Duration) string {
	const day = 24 * time.Hour
	if offset%day == 0 {
		return fmt.Sprintf("%dd ago", offset/day)
	}
	return offset.String() + " ago"
}
