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

package jobrunner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/ragd/internal/model"
	"github.com/kraklabs/ragd/pkg/embedding"
	"github.com/kraklabs/ragd/pkg/enrichment"
	"github.com/kraklabs/ragd/pkg/indexstore"
	"github.com/kraklabs/ragd/pkg/planner"
)

// Span is one (symbol, kind, line/byte range) tuple a SpanExtractor yields
// for a file. The extractor is an opaque collaborator.
type Span struct {
	Symbol    string
	Kind      string
	StartLine int
	EndLine   int
	ByteStart int
	ByteEnd   int
	DocHint   string
}

// SpanExtractor yields spans for one file's content.
type SpanExtractor interface {
	Extract(path, lang string, content []byte) ([]Span, error)
}

// InProcessRunner executes the index+enrich+embed job sequence inside the
// daemon process, useful for tests and small deployments where the
// subprocess boundary isn't needed.
type InProcessRunner struct {
	Extractor       SpanExtractor
	EnrichmentEngine *enrichment.Engine
	EmbeddingEngine  *embedding.Engine
	Source           planner.Source
	EmbeddingRoutes  []string

	EnrichmentBatchSize int
	EmbeddingBatchSize  int
	MaxBatches          int
	TimeBudget          time.Duration
	LangForExt          func(path string) string

	// MaxFailuresPerSpan caps how many exhausted enrichment attempts a span
	// may accumulate before the Planner stops resurfacing it; 0 disables
	// the cap. Independent of the Scheduler's max_consecutive_failures,
	// which parks whole repos rather than individual spans.
	MaxFailuresPerSpan int

	// CooldownSeconds excludes spans whose file was modified within this
	// many seconds from the enrichment plan, so a file mid-edit doesn't
	// get enriched against a half-written version; 0 disables the cooldown.
	CooldownSeconds int

	Logger *slog.Logger
}

func (r InProcessRunner) Run(ctx context.Context, desc model.RepoDescriptor) (model.JobResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deadline := time.Now().Add(r.TimeBudget)
	if r.TimeBudget <= 0 {
		deadline = time.Now().Add(24 * time.Hour)
	}

	dbPath := filepath.Join(desc.WorkspacePath, "indexes", "index.db")
	store, err := indexstore.Open(dbPath, logger)
	if err != nil {
		return model.JobResult{Success: false, ExitCode: -1, ErrorReason: err.Error()}, nil
	}
	defer store.Close()

	summary := map[string]any{}

	indexed, removed, err := r.indexPass(ctx, store, desc)
	if err != nil {
		return model.JobResult{Success: false, ExitCode: -1, ErrorReason: err.Error()}, nil
	}
	summary["files_indexed"] = indexed
	summary["files_removed"] = removed

	enriched := r.enrichmentBatches(ctx, store, desc, deadline)
	summary["spans_enriched"] = enriched

	embedded := r.embeddingBatches(ctx, store, desc, deadline)
	summary["spans_embedded"] = embedded

	return model.JobResult{Success: true, ExitCode: 0, Summary: summary}, nil
}

// indexPass walks repo_path, upserting changed files and differentially
// replacing their spans, and deletes files no longer on disk. Unchanged
// files short-circuit on file_hash comparison.
func (r InProcessRunner) indexPass(ctx context.Context, store *indexstore.Store, desc model.RepoDescriptor) (indexed, removed int, err error) {
	seen := make(map[string]struct{})

	walkErr := filepath.WalkDir(desc.RepoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(desc.RepoPath, path)
		if err != nil {
			return nil
		}
		seen[rel] = struct{}{}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		hash := contentHash(content)
		info, err := d.Info()
		if err != nil {
			return nil
		}

		existing, found, getErr := store.FileHash(ctx, rel)
		if getErr == nil && found && existing == hash {
			return nil // unchanged, short-circuit
		}

		lang := "text"
		if r.LangForExt != nil {
			lang = r.LangForExt(rel)
		}
		fileID, err := store.UpsertFile(ctx, indexstore.FileRecord{
			Path: rel, Lang: lang, FileHash: hash, Size: info.Size(), Mtime: float64(info.ModTime().Unix()),
		})
		if err != nil {
			return err
		}

		if r.Extractor != nil {
			spans, err := r.Extractor.Extract(rel, lang, content)
			if err != nil {
				return nil
			}
			records := make([]indexstore.SpanRecord, 0, len(spans))
			for _, sp := range spans {
				records = append(records, indexstore.SpanRecord{
					FileID: fileID, Symbol: sp.Symbol, Kind: sp.Kind,
					StartLine: sp.StartLine, EndLine: sp.EndLine,
					ByteStart: sp.ByteStart, ByteEnd: sp.ByteEnd,
					SpanHash: spanHash(lang, content[sp.ByteStart:sp.ByteEnd]),
					DocHint:  sp.DocHint,
				})
			}
			if _, err := store.ReplaceSpansDifferential(ctx, fileID, records); err != nil {
				return err
			}
		}
		indexed++
		return nil
	})
	if walkErr != nil {
		return indexed, removed, walkErr
	}

	tracked, err := store.AllFilePaths(ctx)
	if err != nil {
		return indexed, removed, err
	}
	for _, path := range tracked {
		if _, ok := seen[path]; ok {
			continue
		}
		if err := store.DeleteFile(ctx, path); err != nil {
			return indexed, removed, err
		}
		removed++
	}

	return indexed, removed, nil
}

// enrichmentBatches runs against a per-job copy of EnrichmentEngine with
// Store pointed at this job's index, so the template engine held on the
// runner stays unmodified and safe to share across concurrently running
// repos.
func (r InProcessRunner) enrichmentBatches(ctx context.Context, store *indexstore.Store, desc model.RepoDescriptor, deadline time.Time) int {
	if r.EnrichmentEngine == nil {
		return 0
	}
	engine := *r.EnrichmentEngine
	engine.Store = store

	src := r.Source
	if src == nil {
		src = planner.FileSource{}
	}
	total := 0
	batches := r.MaxBatches
	if batches <= 0 {
		batches = 1
	}
	for i := 0; i < batches; i++ {
		if time.Now().After(deadline) {
			break
		}
		tasks, err := planner.EnrichmentPlan(ctx, store, src, desc.RepoPath, r.EnrichmentBatchSize, r.CooldownSeconds, r.MaxFailuresPerSpan)
		if err != nil || len(tasks) == 0 {
			break
		}
		for _, t := range tasks {
			if err := engine.Run(ctx, t); err == nil {
				total++
			}
		}
	}
	return total
}

// embeddingBatches mirrors enrichmentBatches's per-job engine copy.
func (r InProcessRunner) embeddingBatches(ctx context.Context, store *indexstore.Store, desc model.RepoDescriptor, deadline time.Time) int {
	if r.EmbeddingEngine == nil {
		return 0
	}
	engine := *r.EmbeddingEngine
	engine.Store = store

	src := r.Source
	if src == nil {
		src = planner.FileSource{}
	}
	total := 0
	batches := r.MaxBatches
	if batches <= 0 {
		batches = 1
	}
	for _, route := range r.EmbeddingRoutes {
		for i := 0; i < batches; i++ {
			if time.Now().After(deadline) {
				return total
			}
			tasks, err := planner.EmbeddingPlan(ctx, store, src, desc.RepoPath, route, r.EmbeddingBatchSize)
			if err != nil || len(tasks) == 0 {
				break
			}
			stored, err := engine.Run(ctx, route, tasks)
			if err != nil {
				break
			}
			total += stored
		}
	}
	return total
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// spanHash computes sha256(lang || 0x00 || span_bytes) as the span's
// content identity.
func spanHash(lang string, spanBytes []byte) string {
	h := sha256.New()
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write(spanBytes)
	return hex.EncodeToString(h.Sum(nil))
}
