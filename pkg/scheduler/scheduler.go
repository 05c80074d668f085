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

package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/kraklabs/ragd/internal/model"
	"github.com/kraklabs/ragd/pkg/control"
	"github.com/kraklabs/ragd/pkg/registry"
	"github.com/kraklabs/ragd/pkg/statestore"
	"github.com/kraklabs/ragd/pkg/workerpool"
)

// Config holds the scheduler's tunables, threaded explicitly rather than
// read from ambient globals.
type Config struct {
	TickInterval           time.Duration
	MaxConcurrentJobs      int
	MaxConsecutiveFailures int
}

// Scheduler runs the periodic tick loop: drain control events, find
// eligible repos, submit them to the worker pool, and sleep with jitter
// until the next tick.
type Scheduler struct {
	Config   Config
	Registry *registry.Registry
	States   *statestore.StateStore
	Control  *control.Surface
	Pool     *workerpool.Pool
	Logger   *slog.Logger

	shutdown chan struct{}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// RunForever loops ticks until ctx is cancelled or the control surface
// raises shutdown.flag, then drains the worker pool before returning.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.shutdown = make(chan struct{})
	s.markStaleRunningStates()

	for {
		select {
		case <-ctx.Done():
			s.Pool.Wait()
			return
		case <-s.shutdown:
			s.Pool.Wait()
			return
		case <-time.After(tickWithJitter(s.Config.TickInterval)):
		}

		shutdownRequested := s.Tick(ctx)
		if shutdownRequested {
			s.Pool.Wait()
			return
		}
	}
}

// markStaleRunningStates is the crash-recovery rule: on startup, any state
// left in "running" is stale (no process actually holds it) and must be
// treated as re-eligible.
func (s *Scheduler) markStaleRunningStates() {
	states := s.States.LoadAll()
	for repoID, st := range states {
		if st.LastRunStatus != model.StatusRunning {
			continue
		}
		_, _ = s.States.Update(repoID, func(st model.RepoState) model.RepoState {
			st.LastRunStatus = model.StatusError
			st.LastErrorReason = "stale running state recovered at startup"
			return st
		})
	}
}

// Tick runs one scheduling iteration and returns true if shutdown was
// requested.
func (s *Scheduler) Tick(ctx context.Context) bool {
	logger := s.logger()

	events := s.Control.Read()
	descs := s.Registry.Load()
	states := s.States.LoadAll()
	running := s.Pool.RunningRepoIDs()

	// Registry.Load returns a map, whose iteration order Go randomizes per
	// run. Sort by repo_id so submission order is stable across ticks and
	// jobs contend for slots in a deterministic order, not an arbitrary one.
	repoIDs := make([]string, 0, len(descs))
	for repoID := range descs {
		repoIDs = append(repoIDs, repoID)
	}
	sort.Strings(repoIDs)

	var eligible []workerpool.Job
	for _, repoID := range repoIDs {
		desc := descs[repoID]
		if _, busy := running[desc.RepoID]; busy {
			continue
		}
		_, forceOne := events.RefreshRepoIDs[desc.RepoID]
		force := events.RefreshAll || forceOne

		state, ok := states[desc.RepoID]
		if !ok {
			state = model.ZeroState(desc.RepoID)
		}

		if Eligible(desc, state, time.Now().UTC(), force, s.Config.TickInterval, s.Config.MaxConsecutiveFailures) {
			eligible = append(eligible, workerpool.Job{Desc: desc})
		}
	}

	slots := s.Config.MaxConcurrentJobs - len(running)
	if slots < 0 {
		slots = 0
	}
	submit := eligible
	if len(submit) > slots {
		deferred := len(submit) - slots
		submit = submit[:slots]
		logger.Info("deferring eligible jobs to next tick", "deferred", deferred)
	}
	s.Pool.SubmitJobs(ctx, submit)

	return events.Shutdown
}

// Shutdown requests the loop exit after its current sleep/tick.
func (s *Scheduler) Shutdown() {
	if s.shutdown != nil {
		close(s.shutdown)
	}
}

// tickWithJitter adds uniform jitter up to 0.5x interval.
func tickWithJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(interval) / 2))
	return interval + jitter
}
