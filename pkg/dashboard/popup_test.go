// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/jllopis/kairos-console/pkg/descriptor"
	kerrors "github.com/jllopis/kairos-console/pkg/errors"
	"github.com/jllopis/kairos-console/pkg/events"
	"github.com/jllopis/kairos-console/pkg/interval"
	ctesting "github.com/jllopis/kairos-console/pkg/testing"
	"github.com/jllopis/kairos-console/pkg/widget"
)

func TestPopupComparisonAndDispose(t *testing.T) {
	backend := ctesting.NewScenarioBackend().WithGenerator()
	f := newFixture(t, backend, []descriptor.Chart{lineChart("heap", "heapUsed")})
	ctx := context.Background()
	ctesting.RequireNoError(t, f.ctrl.Load(ctx), "load")

	p, err := f.ctrl.OpenPopup(ctx, "heap", interval.Range{Start: start, End: start.Add(30 * time.Minute)})
	ctesting.RequireNoError(t, err, "open popup")
	hc := f.chart(t, p.ID())
	if s := p.Series(); len(s) != 1 || len(s[0].Data) != 6 {
		t.Fatalf("expected one series of 6 buckets, got %+v", s)
	}
	if f.ctrl.Popups() != 1 || hc.Listeners() != 1 {
		t.Fatalf("expected one open popup with one listener")
	}

	remove, err := p.Compare(ctx, 24*time.Hour, "")
	ctesting.RequireNoError(t, err, "compare")
	a := ctesting.NewAssertions(t)
	a.AssertQuery(backend.LastRequest()).HasInterval("2023-12-31T00:00:00Z", "2023-12-31T00:30:00Z")
	a.AssertEqual([]string{"1d ago"}, p.Comparisons(), "comparison labels")
	a.AssertOption(hc.GetOption()).HasSeriesCount(2)

	ctesting.RequireNoError(t, remove(), "remove comparison")
	a.AssertOption(hc.GetOption()).HasSeriesCount(1)
	ctesting.RequireNoError(t, remove(), "second remove is a no-op")

	if _, err := p.Compare(ctx, 0, ""); !kerrors.HasCode(err, kerrors.CodeInvalidInput) {
		t.Errorf("expected invalid input for a zero offset, got %v", err)
	}

	hc.Brush(widget.BrushEvent{StartIndex: 1, EndIndex: 2})
	f.ctrl.Wait()
	want := interval.Range{Start: start.Add(5 * time.Minute), End: start.Add(15 * time.Minute)}
	if got := p.Range(); !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Errorf("brush must narrow the popup to %s, got %s", want, got)
	}

	p.Close()
	p.Close()
	if !p.Closed() || !hc.Disposed() || hc.Listeners() != 0 {
		t.Errorf("closing must dispose the chart and drop its listeners")
	}
	if f.ctrl.Popups() != 0 {
		t.Errorf("closed popup still registered")
	}
	if _, err := p.Compare(ctx, time.Hour, ""); !kerrors.HasCode(err, kerrors.CodeContextLost) {
		t.Errorf("late comparison must be discarded, got %v", err)
	}
	if len(f.events.OfType(events.EventPopupOpened)) != 1 || len(f.events.OfType(events.EventPopupClosed)) != 1 {
		t.Errorf("expected one open and one close event")
	}
}

func TestOpenPopupValidation(t *testing.T) {
	backend := ctesting.NewScenarioBackend().WithGenerator()
	table := descriptor.Chart{
		ID:    "slow",
		Type:  descriptor.TypeTable,
		Query: descriptor.Query{Type: descriptor.QueryList, DataSource: "slow", Fields: []descriptor.Field{{Field: "sql"}}},
	}
	f := newFixture(t, backend, []descriptor.Chart{lineChart("heap", "heapUsed"), table})
	ctx := context.Background()
	hour := interval.Range{Start: start, End: end}

	tests := []struct {
		name   string
		widget string
		r      interval.Range
		code   kerrors.ErrorCode
	}{
		{"unknown widget", "nope", hour, kerrors.CodeNotFound},
		{"table", "slow", hour, kerrors.CodeInvalidInput},
		{"empty range", "heap", interval.Range{Start: end, End: start}, kerrors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.ctrl.OpenPopup(ctx, tt.widget, tt.r); !kerrors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCloseControllerClosesPopups(t *testing.T) {
	backend := ctesting.NewScenarioBackend().WithGenerator()
	f := newFixture(t, backend, []descriptor.Chart{lineChart("heap", "heapUsed")})
	ctx := context.Background()

	p, err := f.ctrl.OpenPopup(ctx, "heap", interval.Range{Start: start, End: end})
	ctesting.RequireNoError(t, err, "open popup")
	f.ctrl.Close()
	if !p.Closed() {
		t.Errorf("closing the dashboard must close its popups")
	}
	if _, err := f.ctrl.OpenPopup(ctx, "heap", interval.Range{Start: start, End: end}); !kerrors.HasCode(err, kerrors.CodeContextLost) {
		t.Errorf("expected context lost after close, got %v", err)
	}
}
