// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists dashboard documents.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jllopis/kairos-console/pkg/backend"
	"github.com/jllopis/kairos-console/pkg/config"
	"github.com/jllopis/kairos-console/pkg/descriptor"
	"github.com/jllopis/kairos-console/pkg/errors"
)

// Store keeps raw dashboard documents keyed by dashboard name.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, doc []byte) error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid dashboard name %q", name), nil)
	}
	return nil
}

// validateDocument rejects documents that do not load as a dashboard or
// carry a chart that could not be read.
func validateDocument(name string, doc []byte) error {
	d, err := descriptor.Load(doc)
	if err != nil {
		return errors.New(errors.CodeInvalidDescriptor, "invalid dashboard document", err).
			WithContext("dashboard", name)
	}
	for _, c := range d.Charts {
		if c.Invalid != "" {
			return errors.New(errors.CodeInvalidDescriptor, "invalid chart in dashboard document", nil).
				WithContext("dashboard", name).
				WithContext("chart", c.Invalid)
		}
	}
	return nil
}

func notFound(name string) error {
	return errors.New(errors.CodeNotFound, "dashboard not found", nil).WithContext("dashboard", name)
}

// Load fetches and normalizes the dashboard called name. A document without
// a name takes the key it was stored under.
func Load(ctx context.Context, s Store, name string) (*descriptor.Dashboard, error) {
	doc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	d, err := descriptor.Load(doc)
	if err != nil {
		return nil, err
	}
	if d.Name == "" {
		d.Name = name
		if d.Title == "" {
			d.Title = name
		}
	}
	return d, nil
}

// Closer releases a store's resources.
type Closer func() error

// Open creates the store selected by cfg. The http driver reuses client.
func Open(ctx context.Context, cfg config.StoreConfig, client *backend.Client) (Store, Closer, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "file":
		if cfg.Path == "" {
			return nil, nil, errors.New(errors.CodeInvalidInput, "store.path is required for the file driver", nil)
		}
		return NewFileStore(cfg.Path), noop, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Initialize(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case "http", "":
		if cfg.URL != "" {
			client = backend.New(cfg.URL)
		}
		if client == nil {
			return nil, nil, errors.New(errors.CodeInvalidInput, "http store needs a backend client", nil)
		}
		return NewHTTPStore(client), noop, nil
	default:
		return nil, nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown store driver %q", cfg.Driver), nil)
	}
}
