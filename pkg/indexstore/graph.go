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

	"github.com/jmoiron/sqlx"
)

// UpsertGraphEdge writes (or no-ops on) a tech-docs graph edge. Unique on
// (source_span_hash, edge_type, target_text): re-enrichment is idempotent.
// No graph-builder logic lives here — this is persistence only.
func (s *Store) UpsertGraphEdge(ctx context.Context, e GraphEdgeRecord) error {
	return s.execute(ctx, func(db *sqlx.DB) error {
		var target any
		if e.TargetSpanHash != "" {
			target = e.TargetSpanHash
		}
		_, err := db.Exec(`
			INSERT OR IGNORE INTO graph_edges (source_span_hash, target_span_hash, target_text, edge_type, confidence)
			VALUES (?, ?, ?, ?, ?)
		`, e.SourceSpanHash, target, e.TargetText, e.EdgeType, e.Confidence)
		return err
	})
}

// RebuildEnrichmentsFTS rebuilds the enrichments_fts index from current
// data. No-op returning 0 if FTS5 is unavailable on this sqlite3 build.
func (s *Store) RebuildEnrichmentsFTS(ctx context.Context) (int, error) {
	if !s.ftsAvailable {
		return 0, nil
	}
	var n int
	err := s.execute(ctx, func(db *sqlx.DB) error {
		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.Exec("DELETE FROM enrichments_fts"); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO enrichments_fts(rowid, symbol, summary)
			SELECT e.rowid, s.symbol, e.summary
			FROM enrichments AS e
			JOIN spans AS s ON s.span_hash = e.span_hash
		`); err != nil {
			return err
		}
		if err := tx.Get(&n, "SELECT COUNT(*) FROM enrichments_fts"); err != nil {
			return err
		}
		return tx.Commit()
	})
	return n, err
}

// FTSResult is one hit from SearchEnrichmentsFTS.
type FTSResult struct {
	Symbol  string
	Summary string
}

// SearchEnrichmentsFTS performs an FTS5 MATCH query, returning an empty
// slice if FTS5 is unavailable.
func (s *Store) SearchEnrichmentsFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	if !s.ftsAvailable {
		return nil, nil
	}
	var rows []FTSResult
	err := s.query(ctx, func(db *sqlx.DB) error {
		return db.Select(&rows, `
			SELECT symbol, summary FROM enrichments_fts
			WHERE enrichments_fts MATCH ?
			LIMIT ?
		`, query, limit)
	})
	return rows, err
}
