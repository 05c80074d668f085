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

// Package workerpool implements the Worker Pool (C10): a bounded executor
// that runs at most one job per repo at a time and translates job outcomes
// into State Store updates with exponential backoff. Generalizes the
// mutex-guarded running-set pattern used by single-repo CLI watch loops.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/ragd/internal/model"
	"github.com/kraklabs/ragd/pkg/jobrunner"
	"github.com/kraklabs/ragd/pkg/statestore"
)

// Job is one repo's submitted unit of work.
type Job struct {
	Desc model.RepoDescriptor
}

// makeJobID generates a fresh random identifier per submitted run, used
// only for log correlation.
func makeJobID() string {
	return uuid.NewString()
}

// Pool runs jobs on a bounded set of goroutines, enforcing at most one
// worker per repo_id via a mutex-guarded running-set.
type Pool struct {
	Size            int
	Runner          jobrunner.Runner
	States          *statestore.StateStore
	TickInterval    time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	Logger          *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	sem     chan struct{}
	wg      sync.WaitGroup
}

func (p *Pool) init() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running == nil {
		p.running = make(map[string]struct{})
	}
	if p.sem == nil {
		size := p.Size
		if size <= 0 {
			size = 1
		}
		p.sem = make(chan struct{}, size)
	}
}

// RunningRepoIDs returns a snapshot of repo_ids currently owned by a worker.
func (p *Pool) RunningRepoIDs() map[string]struct{} {
	p.init()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]struct{}, len(p.running))
	for k := range p.running {
		out[k] = struct{}{}
	}
	return out
}

// SubmitJobs applies the submission protocol: under one lock, silently
// drop jobs already running, add the rest to the running set, then
// release the lock before scheduling closures on the executor.
func (p *Pool) SubmitJobs(ctx context.Context, jobs []Job) {
	p.init()
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var accepted []Job
	p.mu.Lock()
	for _, j := range jobs {
		if _, busy := p.running[j.Desc.RepoID]; busy {
			continue
		}
		p.running[j.Desc.RepoID] = struct{}{}
		accepted = append(accepted, j)
	}
	p.mu.Unlock()

	for _, j := range accepted {
		j := j
		p.wg.Add(1)
		p.sem <- struct{}{}
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.runJob(ctx, j, logger)
		}()
	}
}

// Wait blocks until all in-flight jobs finish (used to drain on shutdown).
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runJob(ctx context.Context, j Job, logger *slog.Logger) {
	repoID := j.Desc.RepoID
	jobID := makeJobID()
	logger = logger.With("job_id", jobID, "repo_id", repoID)
	defer func() {
		p.mu.Lock()
		delete(p.running, repoID)
		p.mu.Unlock()
	}()

	now := time.Now().UTC()
	_, _ = p.States.Update(repoID, func(s model.RepoState) model.RepoState {
		s.RepoID = repoID
		s.LastRunStatus = model.StatusRunning
		s.LastRunStartedAt = &now
		return s
	})

	result, err := p.safeRunJob(ctx, j.Desc, logger)

	_, _ = p.States.Update(repoID, func(s model.RepoState) model.RepoState {
		return p.applyResult(j.Desc, s, result, err)
	})
}

// safeRunJob recovers a panicking Runner into a failed JobResult: an
// unhandled panic becomes a failure with error_reason set to the panic
// value and exit_code -1.
func (p *Pool) safeRunJob(ctx context.Context, desc model.RepoDescriptor, logger *slog.Logger) (result model.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "repo_id", desc.RepoID, "panic", r)
			result = model.JobResult{Success: false, ExitCode: -1, ErrorReason: panicMessage(r)}
			err = nil
		}
	}()
	return p.Runner.Run(ctx, desc)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}

// applyResult is the pure state transition from a job outcome to the
// repo's updated run-history record.
func (p *Pool) applyResult(desc model.RepoDescriptor, s model.RepoState, result model.JobResult, runErr error) model.RepoState {
	now := time.Now().UTC()
	s.RepoID = desc.RepoID
	s.LastRunFinishedAt = &now

	if runErr != nil {
		result.Success = false
		result.ErrorReason = runErr.Error()
	}

	if result.Success {
		s.LastRunStatus = model.StatusSuccess
		s.ConsecutiveFailures = 0
		s.LastErrorReason = ""
		interval := p.TickInterval
		if desc.MinRefreshInterval > interval {
			interval = desc.MinRefreshInterval
		}
		next := now.Add(interval)
		s.NextEligibleAt = &next
	} else {
		s.LastRunStatus = model.StatusError
		s.ConsecutiveFailures++
		s.LastErrorReason = result.ErrorReason
		delay := backoffDelay(p.BaseBackoff, p.MaxBackoff, s.ConsecutiveFailures)
		next := now.Add(delay)
		s.NextEligibleAt = &next
	}
	s.LastJobSummary = result.Summary
	return s
}

// backoffDelay implements the exponential backoff formula:
// delay = min(max_backoff, base_backoff * 2^(consecutive_failures-1)).
func backoffDelay(base, max time.Duration, consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	delay := base << uint(consecutiveFailures-1)
	if delay <= 0 || delay > max { // overflow guard included
		return max
	}
	return delay
}
