// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"fmt"
	"strings"

	kerrors "github.com/jllopis/kairos-console/pkg/errors"
)

// State is the lifecycle state of a widget.
type State int

const (
	Uninitialized State = iota
	// AwaitingPrecondition means a required filter is unset. The widget
	// shows a hint and issues no query.
	AwaitingPrecondition
	Loading
	Rendered
	// Failed shows the query error inline. Siblings are unaffected.
	Failed
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingPrecondition:
		return "awaiting_precondition"
	case Loading:
		return "loading"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sequencing decides which of several in-flight responses of one widget is
// rendered.
type Sequencing string

const (
	// LastResolved renders every response in arrival order, so the last one
	// to resolve wins.
	LastResolved Sequencing = "last-resolved"
	// LatestIssued discards responses older than the newest applied request.
	LatestIssued Sequencing = "latest-issued"
)

// ParseSequencing parses a sequencing policy name. An empty name selects
// LastResolved.
func ParseSequencing(v string) (Sequencing, error) {
	switch Sequencing(strings.ToLower(strings.TrimSpace(v))) {
	case "", LastResolved:
		return LastResolved, nil
	case LatestIssued:
		return LatestIssued, nil
	}
	return "", kerrors.New(kerrors.CodeInvalidInput, "unknown sequencing policy", nil).
		WithContext("sequencing", v)
}
