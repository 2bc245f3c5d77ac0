// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package events carries typed dashboard events to subscribers.
package events

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a dashboard event.
type EventType string

const (
	EventFilterChanged    EventType = "filter.changed"
	EventIntervalChanged  EventType = "interval.changed"
	EventRefreshStarted   EventType = "dashboard.refresh.started"
	EventRefreshCompleted EventType = "dashboard.refresh.completed"
	EventWidgetState      EventType = "widget.state"
	EventWidgetFailed     EventType = "widget.failed"
	EventBrushSelected    EventType = "widget.brush"
	EventZoomed           EventType = "widget.zoom"
	EventPopupOpened      EventType = "popup.opened"
	EventPopupClosed      EventType = "popup.closed"
)

// Event is one dashboard event.
type Event struct {
	Type      EventType      `json:"type"`
	Dashboard string         `json:"dashboard,omitempty"`
	Widget    string         `json:"widget,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Emitter receives events. Emit must not block the caller for long.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Noop discards events.
type Noop struct{}

// Emit implements Emitter.
func (Noop) Emit(_ context.Context, _ Event) {}

// New builds an event stamped with the current UTC time.
func New(eventType EventType, dashboard, widget string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Dashboard: dashboard,
		Widget:    widget,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Multi fans events out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// Func adapts a function to Emitter.
type Func func(ctx context.Context, event Event)

// Emit implements Emitter.
func (f Func) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
