// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jllopis/kairos-console/pkg/errors"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore keeps dashboards in a shared PostgreSQL database so several
// console instances see the same documents.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable overrides the table name (default console_dashboards).
func WithTable(table string) PostgresOption {
	return func(s *PostgresStore) {
		s.table = table
	}
}

// NewPostgresStore connects to dsn and checks the connection.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New(errors.CodeInvalidInput, "store.dsn is required for the postgres driver", nil)
	}
	s := &PostgresStore{table: "console_dashboards"}
	for _, opt := range opts {
		opt(s)
	}
	if !tableNamePattern.MatchString(s.table) {
		return nil, fmt.Errorf("invalid table name %q", s.table)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.New(errors.CodeBackendUnavailable, "postgres unreachable", err)
	}
	s.pool = pool
	return s, nil
}

// Initialize creates the table if it doesn't exist.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, s.table))
	return err
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, s.table))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) Get(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT document::text FROM %s WHERE name = $1`, s.table), name).Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (s *PostgresStore) Put(ctx context.Context, name string, doc []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateDocument(name, doc); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, document, updated_at) VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, s.table), name, string(doc))
	return err
}
