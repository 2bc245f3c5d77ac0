// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the console CLI and its HTTP surface.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// CLIError wraps ConsoleError with a hint for the terminal.
type CLIError struct {
	*errors.ConsoleError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ce *errors.ConsoleError, hint string) *CLIError {
	return &CLIError{
		ConsoleError: ce,
		Hint:         hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.ConsoleError == nil {
		return "unknown error"
	}

	msg := e.ConsoleError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError writes the error to w.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{
				"code":    e.ConsoleError.Code,
				"message": e.ConsoleError.Message,
				"hint":    e.Hint,
			},
		})
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.ConsoleError.Code), e.ConsoleError.Message)
	if e.ConsoleError.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", e.ConsoleError.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// WrapError attaches a hint matching the error code of err.
func WrapError(err error) *CLIError {
	if ce, ok := err.(*CLIError); ok {
		return ce
	}
	ce := errors.AsConsoleError(err)
	var hint string
	switch ce.Code {
	case errors.CodeBackendUnavailable:
		hint = "check backend.base_url and that the query backend is running"
	case errors.CodeTimeout:
		hint = "try increasing timeout with --timeout or backend.timeout_seconds"
	case errors.CodeNotFound:
		hint = "run 'console dashboards' to list the stored dashboards"
	case errors.CodeInvalidDescriptor:
		hint = "check the dashboard document syntax"
	case errors.CodeInvalidInput:
		hint = "run 'console help' for usage information"
	}
	return NewCLIError(ce, hint)
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ce := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(ce, "run 'console help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ce := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ce, hint)
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeInvalidDescriptor:
		return "Invalid Dashboard"
	case errors.CodeQueryFailed:
		return "Query Failed"
	case errors.CodeBackendUnavailable:
		return "Backend Unavailable"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeContextLost:
		return "Context Lost"
	case errors.CodePreconditionUnmet:
		return "Precondition Unmet"
	default:
		return string(code)
	}
}

// fail prints err and exits.
func fail(global globalFlags, err error) {
	WrapError(err).PrintError(os.Stderr, global.JSON)
	os.Exit(1)
}
