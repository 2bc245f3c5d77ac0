// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package widget

import (
	"sync"

	"github.com/jllopis/kairos-console/pkg/chart"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/format"
)

// HeadlessChart keeps the chart option in memory.
type HeadlessChart struct {
	mu       sync.Mutex
	id       string
	option   chart.Option
	width    int
	height   int
	disposed bool
	nextID   int
	brush    map[int]func(BrushEvent)
	click    map[int]func(ClickEvent)
	updates  int
}

// NewHeadlessChart creates an in-memory chart.
func NewHeadlessChart(id string) *HeadlessChart {
	return &HeadlessChart{
		id:    id,
		brush: make(map[int]func(BrushEvent)),
		click: make(map[int]func(ClickEvent)),
	}
}

// ID returns the chart id.
func (c *HeadlessChart) ID() string { return c.id }

func (c *HeadlessChart) SetOption(p chart.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	c.option = chart.Apply(c.option, p)
	c.updates++
	return nil
}

func (c *HeadlessChart) GetOption() chart.Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.option.Clone()
}

func (c *HeadlessChart) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
}

// Size returns the last size passed to Resize.
func (c *HeadlessChart) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Updates returns how many option patches were applied.
func (c *HeadlessChart) Updates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

// Dispose drops the option and every listener.
func (c *HeadlessChart) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.option = chart.Option{}
	clear(c.brush)
	clear(c.click)
}

func (c *HeadlessChart) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Listeners returns the number of registered listeners.
func (c *HeadlessChart) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.brush) + len(c.click)
}

func (c *HeadlessChart) OnBrush(fn func(BrushEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.brush[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.brush, id)
	}
}

func (c *HeadlessChart) OnClick(fn func(ClickEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.click[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.click, id)
	}
}

// Brush emits a brush selection to the listeners.
func (c *HeadlessChart) Brush(ev BrushEvent) {
	c.mu.Lock()
	fns := make([]func(BrushEvent), 0, len(c.brush))
	for _, fn := range c.brush {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Click emits a click to the listeners.
func (c *HeadlessChart) Click(ev ClickEvent) {
	c.mu.Lock()
	fns := make([]func(ClickEvent), 0, len(c.click))
	for _, fn := range c.click {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// HeadlessFactory creates headless widgets and remembers them by chart id.
type HeadlessFactory struct {
	mu      sync.Mutex
	formats *format.Registry
	charts  map[string]*HeadlessChart
	tables  map[string]*HeadlessTable
}

// NewHeadlessFactory creates a factory. A nil registry uses format.Default.
func NewHeadlessFactory(formats *format.Registry) *HeadlessFactory {
	if formats == nil {
		formats = format.Default
	}
	return &HeadlessFactory{
		formats: formats,
		charts:  make(map[string]*HeadlessChart),
		tables:  make(map[string]*HeadlessTable),
	}
}

func (f *HeadlessFactory) NewChart(c descriptor.Chart) Chart {
	hc := NewHeadlessChart(c.ID)
	f.mu.Lock()
	f.charts[c.ID] = hc
	f.mu.Unlock()
	return hc
}

func (f *HeadlessFactory) NewTable(c descriptor.Chart) Table {
	ht := NewHeadlessTable(c, f.formats)
	f.mu.Lock()
	f.tables[c.ID] = ht
	f.mu.Unlock()
	return ht
}

// Chart returns the headless chart created for id.
func (f *HeadlessFactory) Chart(id string) (*HeadlessChart, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.charts[id]
	return c, ok
}

// Table returns the headless table created for id.
func (f *HeadlessFactory) Table(id string) (*HeadlessTable, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[id]
	return t, ok
}
