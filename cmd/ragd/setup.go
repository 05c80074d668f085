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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/ragd/internal/config"
	"github.com/kraklabs/ragd/pkg/control"
	"github.com/kraklabs/ragd/pkg/jobrunner"
	"github.com/kraklabs/ragd/pkg/registry"
	"github.com/kraklabs/ragd/pkg/scheduler"
	"github.com/kraklabs/ragd/pkg/statestore"
	"github.com/kraklabs/ragd/pkg/workerpool"
)

// newLogger builds the daemon's structured logger: text to stderr, plus a
// JSON file ragd.log under cfg.LogPath, opened in append mode and never
// rotated, mirroring the console+file
// handler split in the original daemon's logging_utils.py.
func newLogger(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(cfg.LogPath, 0o755); err == nil {
			logFile := filepath.Join(cfg.LogPath, "ragd.log")
			if f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
			}
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(fanoutHandler{handlers: handlers})
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildScheduler wires the Registry, State Store, Control Surface, Worker
// Pool and Scheduler from the effective config, matching _make_scheduler
// in the original daemon's main.py.
func buildScheduler(cfg config.Config, logger *slog.Logger) *scheduler.Scheduler {
	reg := registry.New(cfg.RegistryPath, logger)
	states := statestore.New(cfg.StateStorePath, logger)
	ctrl := control.New(cfg.ControlDir, logger)

	pool := &workerpool.Pool{
		Size: cfg.MaxConcurrentJobs,
		Runner: jobrunner.SubprocessRunner{
			Command: cfg.JobRunnerCmd,
			Timeout: 30 * time.Minute,
		},
		States:       states,
		TickInterval: time.Duration(cfg.TickIntervalSeconds) * time.Second,
		BaseBackoff:  time.Duration(cfg.BaseBackoffSeconds) * time.Second,
		MaxBackoff:   time.Duration(cfg.MaxBackoffSeconds) * time.Second,
		Logger:       logger,
	}

	return &scheduler.Scheduler{
		Config: scheduler.Config{
			TickInterval:           time.Duration(cfg.TickIntervalSeconds) * time.Second,
			MaxConcurrentJobs:      cfg.MaxConcurrentJobs,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		},
		Registry: reg,
		States:   states,
		Control:  ctrl,
		Pool:     pool,
		Logger:   logger,
	}
}

// fanoutHandler writes each record to every wrapped handler, letting the
// daemon log to stderr and a JSON file simultaneously.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}
