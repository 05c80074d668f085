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

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/kraklabs/ragd/internal/config"
	"github.com/kraklabs/ragd/pkg/registry"
	"github.com/kraklabs/ragd/pkg/watch"
)

// cmdRun runs the daemon until interrupted, mirroring _cmd_run in the
// original daemon's main.py. A first SIGINT/SIGTERM cancels the context
// so the scheduler can drain its running jobs; a second signal during
// drain is ignored rather than forcing an unclean exit.
func cmdRun(cfg config.Config, watchTrees bool) int {
	logger := newLogger(cfg)
	s := buildScheduler(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ragd starting",
		"tick_interval_seconds", cfg.TickIntervalSeconds,
		"max_concurrent_jobs", cfg.MaxConcurrentJobs,
		"registry_path", cfg.RegistryPath,
	)

	if watchTrees {
		watcher := &watch.RepoWatcher{
			Registry:   registry.New(cfg.RegistryPath, logger),
			ControlDir: cfg.ControlDir,
			Logger:     logger,
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("repo watcher stopped", "err", err)
			}
		}()
	}

	s.RunForever(ctx)

	logger.Info("ragd shut down")
	return 0
}
