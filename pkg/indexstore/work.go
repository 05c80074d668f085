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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	ragerrors "github.com/kraklabs/ragd/internal/errors"
)

type pendingRow struct {
	SpanHash  string  `db:"span_hash"`
	Path      string  `db:"path"`
	Lang      string  `db:"lang"`
	StartLine int     `db:"start_line"`
	EndLine   int     `db:"end_line"`
	ByteStart int     `db:"byte_start"`
	ByteEnd   int     `db:"byte_end"`
	Mtime     float64 `db:"mtime"`
}

// PendingEnrichments returns spans lacking an enrichment row, ordered by
// insertion id, excluding spans whose file was modified within
// cooldownSeconds and spans that have already accumulated
// maxFailuresPerSpan or more failures in the enrichment_failures table, as
// counted by RecordEnrichmentFailure (0 disables the failure cap). It over-fetches up to 5x limit candidates and applies the
// cooldown/failure filters to all of them, returning everything that
// survives (which may exceed limit) so a caller can diversify across the
// full surviving set before truncating, instead of diversifying only
// within an already-limit-sized slice.
func (s *Store) PendingEnrichments(ctx context.Context, limit int, cooldownSeconds int, maxFailuresPerSpan int) ([]WorkItem, error) {
	candidateLimit := limit * 5
	if candidateLimit < limit {
		candidateLimit = limit
	}
	var rows []pendingRow
	err := s.query(ctx, func(db *sqlx.DB) error {
		return db.Select(&rows, `
			SELECT spans.span_hash, files.path, files.lang, spans.start_line,
			       spans.end_line, spans.byte_start, spans.byte_end, files.mtime
			FROM spans
			JOIN files ON spans.file_id = files.id
			LEFT JOIN enrichments ON spans.span_hash = enrichments.span_hash
			LEFT JOIN enrichment_failures ON spans.span_hash = enrichment_failures.span_hash
			WHERE enrichments.span_hash IS NULL
			  AND (? <= 0 OR COALESCE(enrichment_failures.fail_count, 0) < ?)
			ORDER BY spans.id
			LIMIT ?
		`, maxFailuresPerSpan, maxFailuresPerSpan, candidateLimit)
	})
	if err != nil {
		return nil, err
	}

	now := float64(time.Now().Unix())
	items := make([]WorkItem, 0, len(rows))
	for _, r := range rows {
		if cooldownSeconds > 0 && now-r.Mtime < float64(cooldownSeconds) {
			continue
		}
		items = append(items, toWorkItem(r))
	}
	return items, nil
}

// PendingEmbeddings returns spans lacking a vector in route's table.
func (s *Store) PendingEmbeddings(ctx context.Context, limit int, route string) ([]WorkItem, error) {
	var rows []pendingRow
	err := s.query(ctx, func(db *sqlx.DB) error {
		return db.Select(&rows, `
			SELECT spans.span_hash, files.path, files.lang, spans.start_line,
			       spans.end_line, spans.byte_start, spans.byte_end, files.mtime
			FROM spans
			JOIN files ON spans.file_id = files.id
			LEFT JOIN embeddings ON spans.span_hash = embeddings.span_hash AND embeddings.route_name = ?
			WHERE embeddings.span_hash IS NULL
			ORDER BY spans.id
			LIMIT ?
		`, route, limit)
	})
	if err != nil {
		return nil, err
	}
	items := make([]WorkItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, toWorkItem(r))
	}
	return items, nil
}

func toWorkItem(r pendingRow) WorkItem {
	return WorkItem{
		SpanHash:  r.SpanHash,
		FilePath:  r.Path,
		Lang:      r.Lang,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		ByteStart: r.ByteStart,
		ByteEnd:   r.ByteEnd,
	}
}

// RecordEnrichmentFailure increments span_hash's exhausted-attempt counter,
// consulted by PendingEnrichments to implement max_failures_per_span.
func (s *Store) RecordEnrichmentFailure(ctx context.Context, spanHash string) error {
	return s.execute(ctx, func(db *sqlx.DB) error {
		_, err := db.Exec(`
			INSERT INTO enrichment_failures(span_hash, fail_count) VALUES (?, 1)
			ON CONFLICT(span_hash) DO UPDATE SET fail_count = fail_count + 1
		`, spanHash)
		return err
	})
}

// StoreEnrichment idempotently replaces the enrichment row for span_hash
// (last-writer-wins).
func (s *Store) StoreEnrichment(ctx context.Context, rec EnrichmentRecord) error {
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return err
	}
	inputs, _ := json.Marshal(rec.Inputs)
	outputs, _ := json.Marshal(rec.Outputs)
	sideEffects, _ := json.Marshal(rec.SideEffects)
	pitfalls, _ := json.Marshal(rec.Pitfalls)
	var tags string
	if len(rec.Tags) > 0 {
		tags = strings.Join(rec.Tags, ",")
	}

	return s.execute(ctx, func(db *sqlx.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO enrichments (
				span_hash, summary, tags, evidence, model, created_at, schema_ver,
				inputs, outputs, side_effects, pitfalls, usage_snippet
			) VALUES (?, ?, ?, ?, ?, strftime('%s','now'), ?, ?, ?, ?, ?, ?)
		`, rec.SpanHash, rec.Summary, tags, string(evidence), rec.Model, rec.SchemaVer,
			string(inputs), string(outputs), string(sideEffects), string(pitfalls), rec.UsageSnippet)
		return err
	})
}

// EnsureEmbeddingMeta records (or updates) the dimension configured for a
// route, and is used to reject dimension mismatches at write time.
func (s *Store) EnsureEmbeddingMeta(ctx context.Context, route string, dim int) error {
	return s.execute(ctx, func(db *sqlx.DB) error {
		_, err := db.Exec(`
			INSERT INTO embeddings_meta(route_name, dim, created_at)
			VALUES (?, ?, strftime('%s','now'))
			ON CONFLICT(route_name) DO UPDATE SET
				dim = excluded.dim,
				created_at = excluded.created_at
		`, route, dim)
		return err
	})
}

// StoreEmbedding idempotently replaces the vector for (span_hash, route).
// Rejects vectors whose length doesn't match the route's configured
// dimension.
func (s *Store) StoreEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	return s.execute(ctx, func(db *sqlx.DB) error {
		var dim int
		if err := db.Get(&dim, "SELECT dim FROM embeddings_meta WHERE route_name = ?", rec.RouteName); err == nil {
			if dim != len(rec.Vec) {
				return ragerrors.NewStoreError(
					"embedding dimension mismatch",
					fmt.Sprintf("route %s expects dim %d, got %d", rec.RouteName, dim, len(rec.Vec)),
					"", nil,
				)
			}
		}
		blob := float32sToBytes(rec.Vec)
		_, err := db.Exec(`
			INSERT OR REPLACE INTO embeddings(span_hash, route_name, profile_name, vec)
			VALUES (?, ?, ?, ?)
		`, rec.SpanHash, rec.RouteName, rec.ProfileName, blob)
		return err
	})
}
