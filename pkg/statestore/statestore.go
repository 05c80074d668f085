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

// Package statestore is the per-repo durable run-history store (C2): one
// JSON file per repo_id under a root directory, atomically replaced on
// every write.
package statestore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/ragd/internal/model"
)

// StateStore reads and writes one JSON file per repo under Dir.
type StateStore struct {
	Dir    string
	Logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{Dir: dir, Logger: logger}
}

func (s *StateStore) pathFor(repoID string) string {
	return filepath.Join(s.Dir, repoID+".json")
}

// Get returns the stored state for repoID, or the zero ("never run")
// state if no file exists yet.
func (s *StateStore) Get(repoID string) model.RepoState {
	raw, err := os.ReadFile(s.pathFor(repoID))
	if err != nil {
		return model.ZeroState(repoID)
	}
	var st model.RepoState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.Logger.Warn("corrupt state file, treating as never-run", "repo_id", repoID, "err", err)
		return model.ZeroState(repoID)
	}
	return st
}

// LoadAll reads every *.json file in Dir. A corrupt per-repo file is
// skipped without affecting any other repo.
func (s *StateStore) LoadAll() map[string]model.RepoState {
	out := make(map[string]model.RepoState)
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		repoID := strings.TrimSuffix(e.Name(), ".json")
		raw, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			s.Logger.Warn("failed to read state file", "repo_id", repoID, "err", err)
			continue
		}
		var st model.RepoState
		if err := json.Unmarshal(raw, &st); err != nil {
			s.Logger.Warn("corrupt state file, skipping", "repo_id", repoID, "err", err)
			continue
		}
		out[repoID] = st
	}
	return out
}

// Upsert writes state atomically: write to <repo_id>.json.tmp then rename.
func (s *StateStore) Upsert(state model.RepoState) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	final := s.pathFor(state.RepoID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Mutator transforms a RepoState without performing I/O.
type Mutator func(model.RepoState) model.RepoState

// Update reads the current state (or the zero default), applies mutate,
// then upserts the result.
func (s *StateStore) Update(repoID string, mutate Mutator) (model.RepoState, error) {
	current := s.Get(repoID)
	next := mutate(current)
	next.RepoID = repoID
	if err := s.Upsert(next); err != nil {
		return model.RepoState{}, err
	}
	return next, nil
}
