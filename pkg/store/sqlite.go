// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// SQLiteStore keeps dashboards in an embedded SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore uses db and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, stderrors.New("db is nil")
	}
	if err := ensureSQLiteSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidInput, "store.path is required for the sqlite driver", nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM console_dashboards ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM console_dashboards WHERE name = ?`, name).Scan(&doc)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (s *SQLiteStore) Put(ctx context.Context, name string, doc []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateDocument(name, doc); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO console_dashboards (name, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, name, string(doc), time.Now().UTC())
	return err
}

func ensureSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS console_dashboards (
			name TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TIMESTAMP
		);
	`)
	return err
}
