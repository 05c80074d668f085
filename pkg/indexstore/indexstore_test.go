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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReplaceSpansDifferential_PreservesUnchangedEnrichments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fileID, err := s.UpsertFile(ctx, FileRecord{Path: "a.py", Lang: "python", FileHash: "h1", Size: 10, Mtime: 1})
	require.NoError(t, err)

	initial := []SpanRecord{
		{FileID: fileID, Symbol: "f1", Kind: "function", SpanHash: "hA", StartLine: 1, EndLine: 2},
		{FileID: fileID, Symbol: "f2", Kind: "function", SpanHash: "hB", StartLine: 3, EndLine: 4},
		{FileID: fileID, Symbol: "f3", Kind: "function", SpanHash: "hC", StartLine: 5, EndLine: 6},
	}
	_, err = s.ReplaceSpansDifferential(ctx, fileID, initial)
	require.NoError(t, err)

	for _, h := range []string{"hA", "hB", "hC"} {
		require.NoError(t, s.StoreEnrichment(ctx, EnrichmentRecord{SpanHash: h, Summary: "sum " + h}))
	}
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["enrichments"])

	// a.py edited: hB changed to hB2, hC removed, hD added. hA unchanged.
	updated := []SpanRecord{
		{FileID: fileID, Symbol: "f1", Kind: "function", SpanHash: "hA", StartLine: 1, EndLine: 2},
		{FileID: fileID, Symbol: "f2", Kind: "function", SpanHash: "hB2", StartLine: 3, EndLine: 5},
		{FileID: fileID, Symbol: "f4", Kind: "function", SpanHash: "hD", StartLine: 6, EndLine: 7},
	}
	delta, err := s.ReplaceSpansDifferential(ctx, fileID, updated)
	require.NoError(t, err)
	assert.Equal(t, 2, delta.Added)
	assert.Equal(t, 2, delta.Deleted)
	assert.Equal(t, 1, delta.Unchanged)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["enrichments"], "only hA's enrichment should survive")

	pending, err := s.PendingEnrichments(ctx, 10, 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "hB2 and hD are pending")
}

func TestDeleteFile_CascadesSpansAndEnrichments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fileID, err := s.UpsertFile(ctx, FileRecord{Path: "b.py", Lang: "python", FileHash: "h", Size: 1, Mtime: 1})
	require.NoError(t, err)
	_, err = s.ReplaceSpansDifferential(ctx, fileID, []SpanRecord{{FileID: fileID, SpanHash: "hX", Symbol: "f", Kind: "function"}})
	require.NoError(t, err)
	require.NoError(t, s.StoreEnrichment(ctx, EnrichmentRecord{SpanHash: "hX", Summary: "s"}))

	require.NoError(t, s.DeleteFile(ctx, "b.py"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["spans"])
	assert.Equal(t, 0, stats["enrichments"])
}

func TestPendingEnrichments_RespectsCooldown(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fileID, err := s.UpsertFile(ctx, FileRecord{Path: "c.py", Lang: "python", FileHash: "h", Size: 1, Mtime: float64(time.Now().Unix())})
	require.NoError(t, err)
	_, err = s.ReplaceSpansDifferential(ctx, fileID, []SpanRecord{{FileID: fileID, SpanHash: "hY", Symbol: "f", Kind: "function"}})
	require.NoError(t, err)

	pending, err := s.PendingEnrichments(ctx, 10, 3600, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "recently modified file should be held by cooldown")
}

func TestPendingEnrichments_RespectsFailureCap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fileID, err := s.UpsertFile(ctx, FileRecord{Path: "d.py", Lang: "python", FileHash: "h", Size: 1, Mtime: 1})
	require.NoError(t, err)
	_, err = s.ReplaceSpansDifferential(ctx, fileID, []SpanRecord{{FileID: fileID, SpanHash: "hZ", Symbol: "f", Kind: "function"}})
	require.NoError(t, err)

	require.NoError(t, s.RecordEnrichmentFailure(ctx, "hZ"))
	require.NoError(t, s.RecordEnrichmentFailure(ctx, "hZ"))

	pending, err := s.PendingEnrichments(ctx, 10, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, pending, "span with 2 prior failures is excluded by a cap of 2")

	pending, err = s.PendingEnrichments(ctx, 10, 0, 3)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a higher cap still surfaces the span")

	pending, err = s.PendingEnrichments(ctx, 10, 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a cap of 0 disables the filter")
}

func TestStoreEmbedding_RejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.EnsureEmbeddingMeta(ctx, "code", 4))

	fileID, err := s.UpsertFile(ctx, FileRecord{Path: "d.py", Lang: "python", FileHash: "h", Size: 1, Mtime: 1})
	require.NoError(t, err)
	_, err = s.ReplaceSpansDifferential(ctx, fileID, []SpanRecord{{FileID: fileID, SpanHash: "hZ", Symbol: "f", Kind: "function"}})
	require.NoError(t, err)

	err = s.StoreEmbedding(ctx, EmbeddingRecord{SpanHash: "hZ", RouteName: "code", Vec: []float32{1, 2}})
	assert.Error(t, err)

	err = s.StoreEmbedding(ctx, EmbeddingRecord{SpanHash: "hZ", RouteName: "code", Vec: []float32{1, 2, 3, 4}})
	assert.NoError(t, err)
}

func TestFloat32Codec_RoundTrips(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.0}
	assert.Equal(t, vec, bytesToFloat32s(float32sToBytes(vec)))
}
