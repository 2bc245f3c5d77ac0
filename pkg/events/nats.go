// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	kerrors "github.com/jllopis/kairos-console/pkg/errors"
)

// DefaultSubjectPrefix prefixes every published subject.
const DefaultSubjectPrefix = "console.events"

// NATSEmitter publishes events as JSON on "<prefix>.<event type>".
type NATSEmitter struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NATSOption configures a NATSEmitter.
type NATSOption func(*NATSEmitter)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(e *NATSEmitter) {
		if prefix = strings.Trim(prefix, "."); prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for publish failures.
func WithLogger(logger *slog.Logger) NATSOption {
	return func(e *NATSEmitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewNATSEmitter connects to the NATS server at url.
func NewNATSEmitter(url string, opts ...NATSOption) (*NATSEmitter, error) {
	conn, err := nats.Connect(url, nats.Name("kairos-console"))
	if err != nil {
		return nil, kerrors.New(kerrors.CodeBackendUnavailable, "connect to nats", err).
			WithContext("url", url)
	}
	return NewNATSEmitterConn(conn, opts...), nil
}

// NewNATSEmitterConn wraps an existing connection.
func NewNATSEmitterConn(conn *nats.Conn, opts ...NATSOption) *NATSEmitter {
	e := &NATSEmitter{conn: conn, prefix: DefaultSubjectPrefix, logger: slog.Default().With("component", "events.nats")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subject returns the subject an event type is published on.
func (e *NATSEmitter) Subject(t EventType) string {
	return e.prefix + "." + string(t)
}

// Emit implements Emitter. Publish failures are logged and dropped.
func (e *NATSEmitter) Emit(ctx context.Context, event Event) {
	if err := e.Publish(event); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			"type", string(event.Type),
			"subject", e.Subject(event.Type),
			"error", err,
		)
	}
}

// Publish sends one event.
func (e *NATSEmitter) Publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return kerrors.New(kerrors.CodeInternal, "marshal event", err)
	}
	return e.conn.Publish(e.Subject(event.Type), data)
}

// Close drains pending messages and closes the connection.
func (e *NATSEmitter) Close() {
	if e.conn != nil {
		e.conn.Drain()
		e.conn.Close()
	}
}
