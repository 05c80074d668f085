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

// Package embedding implements the Embedding Engine (C8): per work item,
// calls a backend to vectorize a span and writes the result into its
// route's embedding table.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"log/slog"

	"github.com/kraklabs/ragd/pkg/indexstore"
	"github.com/kraklabs/ragd/pkg/planner"
)

// Backend embeds a batch of passages into fixed-dimension vectors.
type Backend interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// Route names one partition of the embedding space with its own table,
// profile, model, and dimension.
type Route struct {
	Name    string
	Profile string
	Dim     int
	Backend Backend
}

// Engine runs embedding work items against a configured set of routes.
type Engine struct {
	Store  *indexstore.Store
	Routes map[string]Route
	Logger *slog.Logger
}

// Run embeds and stores every task for route, skipping spans whose backend
// call fails: the next job cycle retries the still-pending span, with no
// retry within this one.
func (e *Engine) Run(ctx context.Context, route string, tasks []planner.Task) (stored int, err error) {
	r, ok := e.Routes[route]
	if !ok {
		return 0, nil
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := e.Store.EnsureEmbeddingMeta(ctx, r.Name, r.Dim); err != nil {
		return 0, err
	}

	for _, task := range tasks {
		vecs, err := r.Backend.EmbedPassages(ctx, []string{task.Snippet})
		if err != nil || len(vecs) == 0 {
			logger.Warn("embedding backend failed, leaving span pending", "span_hash", task.SpanHash, "route", route, "error", err)
			continue
		}
		rec := indexstore.EmbeddingRecord{
			SpanHash:    task.SpanHash,
			RouteName:   r.Name,
			ProfileName: r.Profile,
			Vec:         vecs[0],
		}
		if err := e.Store.StoreEmbedding(ctx, rec); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// DeterministicBackend is a hash-based embedding placeholder, kept
// deterministic and offline for tests and profiles with no configured
// model.
type DeterministicBackend struct {
	Dim int
}

func (b DeterministicBackend) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicEmbedding([]byte(t), b.Dim)
	}
	return out, nil
}

func deterministicEmbedding(payload []byte, dim int) []float32 {
	values := make([]float32, 0, dim)
	seed := payload
	for len(values) < dim {
		digest := sha256.Sum256(seed)
		seed = digest[:]
		for i := 0; i+4 <= len(digest); i += 4 {
			val := binary.LittleEndian.Uint32(digest[i : i+4])
			values = append(values, (float32(val)/float32(4294967295))*2-1)
			if len(values) == dim {
				break
			}
		}
	}
	return values
}
