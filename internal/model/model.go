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

// Package model holds the daemon's core value types: repository
// descriptors, per-repo state, jobs and their results, and the control
// event batch drained from the flag-file inbox each tick.
package model

import "time"

// RunStatus is the lifecycle status of a repo's most recent run.
type RunStatus string

const (
	StatusNever   RunStatus = "never"
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusError   RunStatus = "error"
	StatusSkipped RunStatus = "skipped"
)

// RepoDescriptor describes a registered repository. Immutable for the
// lifetime of a scheduling tick.
type RepoDescriptor struct {
	RepoID             string        `yaml:"repo_id" json:"repo_id"`
	RepoPath           string        `yaml:"repo_path" json:"repo_path"`
	WorkspacePath      string        `yaml:"rag_workspace_path" json:"rag_workspace_path"`
	DisplayName        string        `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Profile            string        `yaml:"rag_profile,omitempty" json:"rag_profile,omitempty"`
	Tags               []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	MinRefreshInterval time.Duration `yaml:"-" json:"-"`
	CreatedAt          time.Time     `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt          time.Time     `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// RepoState is the daemon-maintained record of a repo's run history.
type RepoState struct {
	RepoID              string         `json:"repo_id"`
	LastRunStartedAt    *time.Time     `json:"last_run_started_at,omitempty"`
	LastRunFinishedAt   *time.Time     `json:"last_run_finished_at,omitempty"`
	LastRunStatus       RunStatus      `json:"last_run_status"`
	LastErrorReason     string         `json:"last_error_reason,omitempty"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	NextEligibleAt      *time.Time     `json:"next_eligible_at,omitempty"`
	LastJobSummary      map[string]any `json:"last_job_summary,omitempty"`
}

// ZeroState returns the default state for a repo that has never run.
func ZeroState(repoID string) RepoState {
	return RepoState{RepoID: repoID, LastRunStatus: StatusNever}
}

// ControlEvents is the transient batch drained from the control surface
// at the start of a tick.
type ControlEvents struct {
	Shutdown        bool
	RefreshAll      bool
	RefreshRepoIDs  map[string]struct{}
}

func NewControlEvents() ControlEvents {
	return ControlEvents{RefreshRepoIDs: make(map[string]struct{})}
}

// Job is a scheduled refresh job for a single repo.
type Job struct {
	JobID string
	Repo  RepoDescriptor
	Force bool
}

// JobResult is the outcome of executing a job via the Job Runner.
type JobResult struct {
	Success     bool
	ExitCode    int
	ErrorReason string
	Summary     map[string]any
	StdoutTail  string
	StderrTail  string
}
