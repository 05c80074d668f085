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

package embedding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ragd/pkg/indexstore"
	"github.com/kraklabs/ragd/pkg/planner"
)

func TestDeterministicEmbedding_IsStableForSameInput(t *testing.T) {
	a := deterministicEmbedding([]byte("hello"), 8)
	b := deterministicEmbedding([]byte("hello"), 8)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestEngine_Run_StoresVectorsForRoute(t *testing.T) {
	ctx := context.Background()
	store, err := indexstore.Open(filepath.Join(t.TempDir(), "idx.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fileID, err := store.UpsertFile(ctx, indexstore.FileRecord{Path: "a.py", Lang: "python", FileHash: "h", Size: 1, Mtime: 1})
	require.NoError(t, err)
	_, err = store.ReplaceSpansDifferential(ctx, fileID, []indexstore.SpanRecord{
		{FileID: fileID, Symbol: "f", Kind: "function", SpanHash: "hA"},
	})
	require.NoError(t, err)

	e := &Engine{
		Store: store,
		Routes: map[string]Route{
			"code": {Name: "code", Profile: "default", Dim: 4, Backend: DeterministicBackend{Dim: 4}},
		},
	}
	tasks := []planner.Task{{WorkItem: indexstore.WorkItem{SpanHash: "hA"}, Snippet: "def f(): pass"}}

	stored, err := e.Run(ctx, "code", tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	pending, err := store.PendingEmbeddings(ctx, 10, "code")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_Run_UnknownRouteIsNoop(t *testing.T) {
	ctx := context.Background()
	store, err := indexstore.Open(filepath.Join(t.TempDir(), "idx.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := &Engine{Store: store, Routes: map[string]Route{}}
	stored, err := e.Run(ctx, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}
