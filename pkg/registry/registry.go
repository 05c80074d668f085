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

// Package registry is the durable repo_id -> RepoDescriptor mapping (C1).
// It is read-mostly: Load tolerates a missing or corrupt file by returning
// an empty map rather than failing the daemon, and silently drops entries
// that point at sensitive system paths.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/ragd/internal/model"
)

// sensitiveRoots blocks registry entries pointing at core system paths
// (see DESIGN.md Open Questions for why /root is deliberately not here).
var sensitiveRoots = []string{"/etc", "/proc", "/sys", "/dev"}

type entry struct {
	RepoID                  string   `yaml:"repo_id"`
	RepoPath                string   `yaml:"repo_path"`
	RAGWorkspacePath        string   `yaml:"rag_workspace_path"`
	DisplayName             string   `yaml:"display_name"`
	RAGProfile              string   `yaml:"rag_profile"`
	Tags                    []string `yaml:"tags"`
	CreatedAt               string   `yaml:"created_at"`
	UpdatedAt               string   `yaml:"updated_at"`
	MinRefreshIntervalSecs  *int     `yaml:"min_refresh_interval_seconds"`
}

type payload struct {
	Repos []entry `yaml:"repos"`
}

// Registry is a file-backed, atomically-replaced repo registry.
type Registry struct {
	Path   string
	Logger *slog.Logger
}

func New(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{Path: path, Logger: logger}
}

// Load reads the registry file, tolerating three payload shapes: a
// top-level {repos: [...]} list, a bare list, or a map keyed by repo_id.
func (r *Registry) Load() map[string]model.RepoDescriptor {
	out := make(map[string]model.RepoDescriptor)

	raw, err := os.ReadFile(r.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.Logger.Warn("registry read failed", "path", r.Path, "err", err)
		}
		return out
	}

	entries, err := parseEntries(raw)
	if err != nil {
		r.Logger.Warn("registry parse failed, treating as empty", "path", r.Path, "err", err)
		return out
	}

	for _, e := range entries {
		desc, ok := toDescriptor(e)
		if !ok {
			continue
		}
		if !isSafePath(desc.RepoPath) || (desc.WorkspacePath != "" && !isSafePath(desc.WorkspacePath)) {
			r.Logger.Warn("dropping registry entry with unsafe path", "repo_id", desc.RepoID)
			continue
		}
		out[desc.RepoID] = desc
	}
	return out
}

// FindByID returns a single descriptor, or false if not registered.
func (r *Registry) FindByID(repoID string) (model.RepoDescriptor, bool) {
	d, ok := r.Load()[repoID]
	return d, ok
}

// FindByPath returns the descriptor whose RepoPath matches, if any.
func (r *Registry) FindByPath(path string) (model.RepoDescriptor, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, d := range r.Load() {
		if d.RepoPath == abs {
			return d, true
		}
	}
	return model.RepoDescriptor{}, false
}

// Register adds or replaces an entry and atomically rewrites the file.
func (r *Registry) Register(desc model.RepoDescriptor) error {
	all := r.Load()
	if desc.CreatedAt.IsZero() {
		if existing, ok := all[desc.RepoID]; ok {
			desc.CreatedAt = existing.CreatedAt
		} else {
			desc.CreatedAt = time.Now().UTC()
		}
	}
	desc.UpdatedAt = time.Now().UTC()
	all[desc.RepoID] = desc
	return r.writeAll(all)
}

// Unregister removes an entry by repo_id.
func (r *Registry) Unregister(repoID string) error {
	all := r.Load()
	delete(all, repoID)
	return r.writeAll(all)
}

func (r *Registry) writeAll(all map[string]model.RepoDescriptor) error {
	p := payload{}
	for _, d := range all {
		e := entry{
			RepoID:           d.RepoID,
			RepoPath:         d.RepoPath,
			RAGWorkspacePath: d.WorkspacePath,
			DisplayName:      d.DisplayName,
			RAGProfile:       d.Profile,
			Tags:             d.Tags,
			CreatedAt:        d.CreatedAt.Format(time.RFC3339),
			UpdatedAt:        d.UpdatedAt.Format(time.RFC3339),
		}
		if d.MinRefreshInterval > 0 {
			secs := int(d.MinRefreshInterval.Seconds())
			e.MinRefreshIntervalSecs = &secs
		}
		p.Repos = append(p.Repos, e)
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}

func parseEntries(raw []byte) ([]entry, error) {
	// Try {repos: [...]} first.
	var withRepos payload
	if err := yaml.Unmarshal(raw, &withRepos); err == nil && withRepos.Repos != nil {
		return withRepos.Repos, nil
	}

	// Try a bare list.
	var list []entry
	if err := yaml.Unmarshal(raw, &list); err == nil && list != nil {
		return list, nil
	}

	// Fall back to a map keyed by repo_id.
	var asMap map[string]entry
	if err := yaml.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(asMap))
	for id, e := range asMap {
		if e.RepoID == "" {
			e.RepoID = id
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toDescriptor(e entry) (model.RepoDescriptor, bool) {
	if e.RepoID == "" || e.RepoPath == "" {
		return model.RepoDescriptor{}, false
	}
	repoPath, err := filepath.Abs(expandHome(e.RepoPath))
	if err != nil {
		return model.RepoDescriptor{}, false
	}
	var wsPath string
	if e.RAGWorkspacePath != "" {
		wsPath, err = filepath.Abs(expandHome(e.RAGWorkspacePath))
		if err != nil {
			return model.RepoDescriptor{}, false
		}
	}
	displayName := e.DisplayName
	if displayName == "" {
		displayName = e.RepoID
	}
	profile := e.RAGProfile
	if profile == "" {
		profile = "default"
	}
	var minRefresh time.Duration
	if e.MinRefreshIntervalSecs != nil {
		minRefresh = time.Duration(*e.MinRefreshIntervalSecs) * time.Second
	}
	desc := model.RepoDescriptor{
		RepoID:             e.RepoID,
		RepoPath:           repoPath,
		WorkspacePath:      wsPath,
		DisplayName:        displayName,
		Profile:            profile,
		Tags:               e.Tags,
		MinRefreshInterval: minRefresh,
	}
	if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		desc.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, e.UpdatedAt); err == nil {
		desc.UpdatedAt = t
	}
	return desc, true
}

func expandHome(p string) string {
	if p == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if len(p) >= 2 && p[:2] == "~/" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

func isSafePath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range sensitiveRoots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, "..") {
			return false
		}
	}
	return true
}
