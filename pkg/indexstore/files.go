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

package indexstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// UpsertFile inserts or updates a file row keyed by path, returning its id.
func (s *Store) UpsertFile(ctx context.Context, f FileRecord) (int64, error) {
	var id int64
	err := s.execute(ctx, func(db *sqlx.DB) error {
		_, err := db.Exec(`
			INSERT INTO files(path, lang, file_hash, size, mtime)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				lang = excluded.lang,
				file_hash = excluded.file_hash,
				size = excluded.size,
				mtime = excluded.mtime
		`, f.Path, f.Lang, f.FileHash, f.Size, f.Mtime)
		if err != nil {
			return err
		}
		return db.Get(&id, "SELECT id FROM files WHERE path = ?", f.Path)
	})
	return id, err
}

// FileHash returns the stored hash for path, and whether the file exists.
func (s *Store) FileHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	found := true
	err := s.query(ctx, func(db *sqlx.DB) error {
		err := db.Get(&hash, "SELECT file_hash FROM files WHERE path = ?", path)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	return hash, found, err
}

// DeleteFile removes a file row; spans cascade-delete, which in turn
// cascades enrichments and embeddings.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	return s.execute(ctx, func(db *sqlx.DB) error {
		_, err := db.Exec("DELETE FROM files WHERE path = ?", path)
		return err
	})
}

// AllFilePaths returns every tracked file path, used to detect files that
// were removed from disk between index passes.
func (s *Store) AllFilePaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.query(ctx, func(db *sqlx.DB) error {
		return db.Select(&paths, "SELECT path FROM files")
	})
	return paths, err
}

// SpanDelta describes the result of a differential span replace.
type SpanDelta struct {
	Added     int
	Deleted   int
	Unchanged int
}

// ReplaceSpansDifferential is the design-critical operation: given the
// existing span_hash set for fileID and the proposed new set, delete
// only removed spans (cascading their enrichments/embeddings),
// insert only new spans, and never touch unchanged ones — so enrichments
// for unchanged code survive across re-index.
func (s *Store) ReplaceSpansDifferential(ctx context.Context, fileID int64, spans []SpanRecord) (SpanDelta, error) {
	var delta SpanDelta
	err := s.execute(ctx, func(db *sqlx.DB) error {
		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		var existingHashes []string
		if err := tx.Select(&existingHashes, "SELECT span_hash FROM spans WHERE file_id = ?", fileID); err != nil {
			return err
		}
		existing := make(map[string]struct{}, len(existingHashes))
		for _, h := range existingHashes {
			existing[h] = struct{}{}
		}

		newSet := make(map[string]struct{}, len(spans))
		for _, sp := range spans {
			newSet[sp.SpanHash] = struct{}{}
		}

		var toDelete []string
		for h := range existing {
			if _, ok := newSet[h]; !ok {
				toDelete = append(toDelete, h)
			} else {
				delta.Unchanged++
			}
		}

		if len(toDelete) > 0 {
			query, args, err := sqlx.In("DELETE FROM spans WHERE span_hash IN (?)", toDelete)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
				return err
			}
			delta.Deleted = len(toDelete)
		}

		for _, sp := range spans {
			if _, ok := existing[sp.SpanHash]; ok {
				continue
			}
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO spans (
					file_id, symbol, kind, start_line, end_line,
					byte_start, byte_end, span_hash, doc_hint
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, fileID, sp.Symbol, sp.Kind, sp.StartLine, sp.EndLine, sp.ByteStart, sp.ByteEnd, sp.SpanHash, sp.DocHint)
			if err != nil {
				return err
			}
			delta.Added++
		}

		return tx.Commit()
	})
	return delta, err
}
