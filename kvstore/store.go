// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package kvstore provides the ordered byte-keyed blob store that backs
// gridstore's on-disk format: a single flat keyspace sorted
// lexicographically by key, with point lookups and ascending range
// cursors. It is implemented on top of SQLite (via
// github.com/mattn/go-sqlite3) rather than a purpose-built LSM engine,
// grounded on the same other_examples manifests that reach for
// mattn/go-sqlite3 for embedded ordered storage (see DESIGN.md).
package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	// Registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Store is an ordered key/value blob store backed by a single SQLite
// file (or, for tests, an in-memory database).
type Store struct {
	db *sql.DB
}

// Options configures Open.
type Options struct {
	// ReadOnly opens the database in SQLite's immutable mode, refusing
	// any write. Used by read-only gridstore.Open.
	ReadOnly bool
	// MaxOpenConns bounds the pool of concurrent connections into the
	// database file. Defaults to 4 if zero.
	MaxOpenConns int
}

// Open opens (or creates) the blob store at path.
func Open(path string, opts Options) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	if opts.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: open")
	}
	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)

	if !opts.ReadOnly {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "kvstore: create schema")
		}
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a private, in-memory store, used by tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: open memory")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "kvstore: create schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the value stored under key. ok is false if no such key
// exists.
func (s *Store) Get(ctx context.Context, key []byte) (value []byte, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "kvstore: get")
	}
	return value, true, nil
}

// Put inserts or overwrites the value stored under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.Wrap(err, "kvstore: put")
	}
	return nil
}

// PutBatch writes every (key, value) pair in one transaction, for bulk
// loading. Builder.Finish does not use it; it writes each value with Put.
func (s *Store) PutBatch(ctx context.Context, keys, values [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "kvstore: begin batch")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blobs(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "kvstore: prepare batch")
	}
	defer stmt.Close()
	for i := range keys {
		if _, err := stmt.ExecContext(ctx, keys[i], values[i]); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "kvstore: exec batch")
		}
	}
	return tx.Commit()
}

// Cursor is an ascending iterator over a key range.
type Cursor struct {
	rows *sql.Rows
	key  []byte
	val  []byte
	err  error
}

// Scan returns a Cursor over every key >= start (or every key, if start
// is nil), in ascending lexicographic order.
func (s *Store) Scan(ctx context.Context, start []byte) (*Cursor, error) {
	var rows *sql.Rows
	var err error
	if start == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT key, value FROM blobs ORDER BY key ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key, value FROM blobs WHERE key >= ? ORDER BY key ASC`, start)
	}
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: scan")
	}
	return &Cursor{rows: rows}, nil
}

// ScanRange returns a Cursor over every key in [start, end), ascending.
func (s *Store) ScanRange(ctx context.Context, start, end []byte) (*Cursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM blobs WHERE key >= ? AND key < ? ORDER BY key ASC`, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: scan range")
	}
	return &Cursor{rows: rows}, nil
}

// Next advances the cursor, returning false at the end of the range or
// on error (check Err to distinguish).
func (c *Cursor) Next() bool {
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	if err := c.rows.Scan(&c.key, &c.val); err != nil {
		c.err = err
		return false
	}
	return true
}

// Key returns the current row's key. Valid only after a true Next.
func (c *Cursor) Key() []byte { return c.key }

// Value returns the current row's value. Valid only after a true Next.
func (c *Cursor) Value() []byte { return c.val }

// Err returns the first error encountered during iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor's underlying rows.
func (c *Cursor) Close() error { return c.rows.Close() }
