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

package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestRead_MissingDirReturnsEmptyBatch(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), nil)
	events := s.Read()
	assert.False(t, events.Shutdown)
	assert.False(t, events.RefreshAll)
	assert.Empty(t, events.RefreshRepoIDs)
}

func TestRead_RecognizesAllFlagKinds(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "shutdown.flag")
	touch(t, dir, "refresh_all.flag")
	touch(t, dir, "refresh_repoA.flag")
	touch(t, dir, "unrelated.txt")

	s := New(dir, nil)
	events := s.Read()
	assert.True(t, events.Shutdown)
	assert.True(t, events.RefreshAll)
	assert.Contains(t, events.RefreshRepoIDs, "repoA")

	remaining, err := filepath.Glob(filepath.Join(dir, "*.flag"))
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRead_LeavesUnrecognizedFlagFileInPlace(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "refresh_all.flag")
	touch(t, dir, "mystery.flag")

	s := New(dir, nil)
	events := s.Read()
	assert.True(t, events.RefreshAll)

	remaining, err := filepath.Glob(filepath.Join(dir, "*.flag"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "mystery.flag")}, remaining, "unrecognized flags are left for an operator to inspect, not silently deleted")
}

func TestRead_SecondCallReturnsEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "refresh_all.flag")
	s := New(dir, nil)
	_ = s.Read()
	second := s.Read()
	assert.False(t, second.RefreshAll)
}
