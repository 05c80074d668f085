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

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ragd/internal/model"
)

func TestLoad_MissingFileReturnsEmptyMap(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "missing.yml"), nil)
	assert.Empty(t, r.Load())
}

func TestLoad_CorruptFileReturnsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))
	r := New(path, nil)
	assert.Empty(t, r.Load())
}

func TestRegisterAndLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	r := New(path, nil)

	repoDir := t.TempDir()
	desc := model.RepoDescriptor{
		RepoID:   "repoA",
		RepoPath: repoDir,
		Profile:  "default",
	}
	require.NoError(t, r.Register(desc))

	loaded := r.Load()
	require.Contains(t, loaded, "repoA")
	assert.Equal(t, repoDir, loaded["repoA"].RepoPath)
	assert.False(t, loaded["repoA"].CreatedAt.IsZero())
}

func TestLoad_DropsEntriesUnderSensitiveRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	contents := []byte("repos:\n  - repo_id: evil\n    repo_path: /etc/passwd\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	r := New(path, nil)
	assert.Empty(t, r.Load())
}

func TestLoad_AcceptsBareListShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	repoDir := t.TempDir()
	contents := "- repo_id: repoB\n  repo_path: " + repoDir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	r := New(path, nil)
	loaded := r.Load()
	require.Contains(t, loaded, "repoB")
}

func TestUnregister_RemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	r := New(path, nil)
	require.NoError(t, r.Register(model.RepoDescriptor{RepoID: "x", RepoPath: t.TempDir()}))
	require.NoError(t, r.Unregister("x"))
	assert.Empty(t, r.Load())
}
