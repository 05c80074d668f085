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

// Package watch raises synthetic refresh control events when a registered
// repo's working tree changes outside of a scheduled tick, generalizing
// the debounced fsnotify loop used by single-repo CLI watch commands into a
// multi-repo daemon-level watcher that writes control flag files instead
// of calling a reindex closure directly.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/ragd/pkg/registry"
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".llmc":        true,
}

// RepoWatcher watches every registered repo's working tree and, on a
// debounced burst of filesystem events, drops a refresh_<repo_id>.flag
// into ControlDir for the Scheduler's Control Surface to pick up on its
// next tick.
type RepoWatcher struct {
	Registry    *registry.Registry
	ControlDir  string
	Debounce    time.Duration
	RescanEvery time.Duration
	Logger      *slog.Logger
}

func (w *RepoWatcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run blocks until ctx is cancelled, rebuilding its fsnotify watch set
// from the registry every RescanEvery so newly registered repos are
// picked up without a restart.
func (w *RepoWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	rescan := w.RescanEvery
	if rescan <= 0 {
		rescan = time.Minute
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	pathToRepo := make(map[string]string)
	w.syncWatches(watcher, pathToRepo)

	pending := make(map[string]*time.Timer)
	rescanTicker := time.NewTicker(rescan)
	defer rescanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rescanTicker.C:
			w.syncWatches(watcher, pathToRepo)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			repoID := w.repoForPath(ev.Name, pathToRepo)
			if repoID == "" {
				continue
			}
			if t, exists := pending[repoID]; exists {
				t.Stop()
			}
			pending[repoID] = time.AfterFunc(debounce, func() { w.raiseRefresh(repoID) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger().Warn("watch error", "err", err)
		}
	}
}

// syncWatches adds fsnotify watches for any registered repo root not yet
// tracked, and drops watches under repo roots that were unregistered
// since the last sync. pathToRepo records the repo_id each watched path
// belongs to, so removal can target exactly the paths added for it.
func (w *RepoWatcher) syncWatches(watcher *fsnotify.Watcher, pathToRepo map[string]string) {
	descs := w.Registry.Load()
	currentRoots := make(map[string]string, len(descs)) // repoPath -> repoID
	for _, desc := range descs {
		currentRoots[desc.RepoPath] = desc.RepoID
	}

	knownRoots := make(map[string]struct{})
	for _, repoID := range pathToRepo {
		knownRoots[repoID] = struct{}{}
	}

	for root, repoID := range currentRoots {
		if _, already := knownRoots[repoID]; already {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				if addErr := watcher.Add(path); addErr == nil {
					pathToRepo[path] = repoID
				}
			}
			return nil
		})
	}

	activeRepoIDs := make(map[string]struct{}, len(currentRoots))
	for _, repoID := range currentRoots {
		activeRepoIDs[repoID] = struct{}{}
	}
	for path, repoID := range pathToRepo {
		if _, ok := activeRepoIDs[repoID]; !ok {
			_ = watcher.Remove(path)
			delete(pathToRepo, path)
		}
	}
}

func (w *RepoWatcher) repoForPath(changed string, pathToRepo map[string]string) string {
	dir := filepath.Dir(changed)
	for {
		if repoID, ok := pathToRepo[dir]; ok {
			return repoID
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (w *RepoWatcher) raiseRefresh(repoID string) {
	if w.ControlDir == "" {
		return
	}
	if err := os.MkdirAll(w.ControlDir, 0o755); err != nil {
		w.logger().Warn("failed to create control dir", "err", err)
		return
	}
	path := filepath.Join(w.ControlDir, "refresh_"+repoID+".flag")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		w.logger().Warn("failed to raise refresh flag", "repo_id", repoID, "err", err)
		return
	}
	w.logger().Info("working tree changed, raised refresh flag", "repo_id", repoID)
}
