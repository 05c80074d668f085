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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ragd/internal/model"
)

type wholeFileExtractor struct{}

func (wholeFileExtractor) Extract(path, lang string, content []byte) ([]Span, error) {
	return []Span{{Symbol: path, Kind: "file", StartLine: 1, EndLine: 1, ByteStart: 0, ByteEnd: len(content)}}, nil
}

func TestInProcessRunner_IndexesRepoFiles(t *testing.T) {
	repoDir := t.TempDir()
	workspaceDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "a.py"), []byte("def f():\n    pass\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(workspaceDir, "indexes"), 0o755))

	runner := InProcessRunner{
		Extractor:  wholeFileExtractor{},
		LangForExt: func(string) string { return "python" },
	}
	desc := model.RepoDescriptor{RepoID: "r1", RepoPath: repoDir, WorkspacePath: workspaceDir}

	result, err := runner.Run(context.Background(), desc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Summary["files_indexed"])
}

func TestTail_TruncatesToFirstNChars(t *testing.T) {
	s := tail("abcdefgh", 4)
	assert.Equal(t, "abcd", s)
}

func TestTail_LeavesShortStringUnchanged(t *testing.T) {
	s := tail("ab", 4)
	assert.Equal(t, "ab", s)
}
