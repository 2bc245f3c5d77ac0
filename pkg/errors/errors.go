// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed errors for the console engine.
// Widget failures are reported as ConsoleError values so the controller can
// render an inline hint and the HTTP surface can map them to status codes.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies console errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates a caller supplied an invalid argument.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidDescriptor indicates a dashboard document could not be parsed.
	CodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"

	// CodeQueryFailed indicates the backend rejected or failed a query.
	CodeQueryFailed ErrorCode = "QUERY_FAILED"

	// CodeBackendUnavailable indicates the backend could not be reached.
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// CodeNotFound indicates a dashboard, widget or data source was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeContextLost indicates the operation context was canceled.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodePreconditionUnmet indicates a widget cannot query until a filter is selected.
	CodePreconditionUnmet ErrorCode = "PRECONDITION_UNMET"
)

// ConsoleError is a typed error with context for logs and traces.
// It can be unwrapped with errors.As.
type ConsoleError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *ConsoleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *ConsoleError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error for structured logging and HTTP bodies.
func (e *ConsoleError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string            `json:"code"`
		Message     string            `json:"message"`
		Cause       string            `json:"cause,omitempty"`
		Recoverable bool              `json:"recoverable"`
		Context     map[string]any    `json:"context,omitempty"`
		Attributes  map[string]string `json:"attributes,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		Context:     e.Context,
		Attributes:  e.Attributes,
	}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a ConsoleError with the given code, message and cause.
func New(code ErrorCode, msg string, cause error) *ConsoleError {
	return &ConsoleError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]any),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *ConsoleError) WithContext(key string, value any) *ConsoleError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for traces.
func (e *ConsoleError) WithAttribute(key, value string) *ConsoleError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable marks whether retrying can succeed.
func (e *ConsoleError) WithRecoverable(recoverable bool) *ConsoleError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *ConsoleError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsConsoleError returns err as a ConsoleError, wrapping unknown errors as internal.
func AsConsoleError(err error) *ConsoleError {
	if err == nil {
		return nil
	}
	var ce *ConsoleError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether any ConsoleError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var ce *ConsoleError
	for err != nil {
		if !stderrors.As(err, &ce) {
			return false
		}
		if ce.Code == code {
			return true
		}
		err = ce.Err
	}
	return false
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput, CodeInvalidDescriptor:
		return http.StatusBadRequest
	case CodePreconditionUnmet:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeBackendUnavailable, CodeQueryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
