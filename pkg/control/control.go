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

// Package control is the flag-file control surface (C3): a directory an
// operator drops empty *.flag files into to signal shutdown or a forced
// refresh. Flag-file IPC is deliberately primitive and is not replaced
// with sockets here.
package control

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/ragd/internal/model"
)

type Surface struct {
	Dir    string
	Logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{Dir: dir, Logger: logger}
}

// Read scans Dir for *.flag files, builds a ControlEvents batch, and
// deletes every file it recognized. Failure to delete a flag is logged
// and non-fatal; the event may simply re-fire next tick.
func (s *Surface) Read() model.ControlEvents {
	events := model.NewControlEvents()

	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.flag"))
	if err != nil || len(matches) == 0 {
		return events
	}

	for _, path := range matches {
		name := filepath.Base(path)
		recognized := true
		switch {
		case name == "refresh_all.flag":
			events.RefreshAll = true
		case name == "shutdown.flag":
			events.Shutdown = true
		case strings.HasPrefix(name, "refresh_") && strings.HasSuffix(name, ".flag"):
			repoID := strings.TrimSuffix(strings.TrimPrefix(name, "refresh_"), ".flag")
			if repoID != "" {
				events.RefreshRepoIDs[repoID] = struct{}{}
			} else {
				recognized = false
			}
		default:
			recognized = false
		}

		if !recognized {
			s.Logger.Warn("ignoring unrecognized control flag", "path", path)
			continue
		}

		if err := os.Remove(path); err != nil {
			s.Logger.Warn("failed to remove control flag", "path", path, "err", err)
		}
	}

	return events
}
