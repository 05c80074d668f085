// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package indexstore is the per-repo content-addressed Index Store (C4):
// files, spans, enrichments, embeddings, keyed by span_hash, with
// cascade-delete foreign keys and a differential span-replace operation
// that preserves enrichments for unchanged code across re-index.
//
// The engine here is sqlx+mattn/go-sqlite3, built around a mutex-guarded
// closed flag, an idempotent schema setup (CREATE ... IF NOT EXISTS) on
// open, and a quarantine-and-recover
// open path.
package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	ragerrors "github.com/kraklabs/ragd/internal/errors"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	lang TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	mtime REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS spans (
	id INTEGER PRIMARY KEY,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	byte_start INTEGER NOT NULL,
	byte_end INTEGER NOT NULL,
	span_hash TEXT NOT NULL UNIQUE,
	doc_hint TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embeddings_meta (
	route_name TEXT PRIMARY KEY,
	dim INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
	span_hash TEXT NOT NULL,
	route_name TEXT NOT NULL,
	profile_name TEXT,
	vec BLOB NOT NULL,
	PRIMARY KEY (span_hash, route_name),
	FOREIGN KEY (span_hash) REFERENCES spans(span_hash) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS enrichments (
	span_hash TEXT PRIMARY KEY,
	summary TEXT,
	tags TEXT,
	evidence TEXT,
	model TEXT,
	created_at DATETIME,
	schema_ver TEXT,
	inputs TEXT,
	outputs TEXT,
	side_effects TEXT,
	pitfalls TEXT,
	usage_snippet TEXT,
	FOREIGN KEY (span_hash) REFERENCES spans(span_hash) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS enrichment_failures (
	span_hash TEXT PRIMARY KEY,
	fail_count INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (span_hash) REFERENCES spans(span_hash) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS graph_edges (
	source_span_hash TEXT NOT NULL,
	target_span_hash TEXT,
	target_text TEXT NOT NULL,
	edge_type TEXT NOT NULL,
	confidence REAL,
	UNIQUE (source_span_hash, edge_type, target_text)
);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_spans_file_id ON spans(file_id);
CREATE INDEX IF NOT EXISTS idx_spans_span_hash ON spans(span_hash);
`

// Store wraps a per-repo SQLite database behind a Query/Execute split
// and a closed-flag guard.
type Store struct {
	mu          sync.RWMutex
	db          *sqlx.DB
	closed      bool
	path        string
	logger      *slog.Logger
	ftsAvailable bool
}

// Open opens (creating if needed) the SQLite-backed index store at path,
// ensures its schema, and quarantines a corrupt file once before giving up.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ragerrors.NewStoreError("failed to create workspace dir", dir, "", err)
		}
	}

	db, err := openAndPrepare(path, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, logger: logger}
	s.ensureFTS()
	return s, nil
}

func openAndPrepare(path string, logger *slog.Logger) (*sqlx.DB, error) {
	for attempt := 1; ; attempt++ {
		db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on")
		if err != nil {
			return nil, ragerrors.NewStoreError("failed to open index store", path, "", err)
		}
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			if !shouldRecover(err) || attempt >= 2 {
				return nil, ragerrors.NewStoreError("failed to initialize index store schema", path, "", err)
			}
			if qerr := quarantine(path); qerr != nil {
				return nil, ragerrors.NewStoreError("failed to quarantine corrupt index store", path, "", qerr)
			}
			logger.Warn("quarantined corrupt index store, recreating", "path", path)
			continue
		}
		return db, nil
	}
}

func shouldRecover(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "malformed")
}

func quarantine(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	suffix := fmt.Sprintf(".corrupt.%d", time.Now().Unix())
	return os.Rename(path, path+suffix)
}

func (s *Store) ensureFTS() {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS enrichments_fts USING fts5(symbol, summary)`)
	if err != nil {
		s.ftsAvailable = false
		if !strings.Contains(strings.ToLower(err.Error()), "fts5") {
			s.logger.Warn("unexpected error creating FTS table", "err", err)
		}
		return
	}
	s.ftsAvailable = true
}

// FTSAvailable reports whether the enrichments_fts virtual table is usable.
func (s *Store) FTSAvailable() bool { return s.ftsAvailable }

// Close closes the underlying database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// query runs a read-only operation under a read lock, rejecting closed
// stores and cancelled contexts.
func (s *Store) query(ctx context.Context, fn func(*sqlx.DB) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ragerrors.NewStoreError("index store closed", s.path, "", sql.ErrConnDone)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.db)
}

// execute runs a mutating operation under a write lock.
func (s *Store) execute(ctx context.Context, fn func(*sqlx.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ragerrors.NewStoreError("index store closed", s.path, "", sql.ErrConnDone)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.db)
}

// Stats returns row counts, supplementing database.py's stats().
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	err := s.query(ctx, func(db *sqlx.DB) error {
		for table, key := range map[string]string{
			"files": "files", "spans": "spans", "enrichments": "enrichments", "embeddings": "embeddings",
		} {
			var n int
			if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
				return err
			}
			out[key] = n
		}
		return nil
	})
	return out, err
}
