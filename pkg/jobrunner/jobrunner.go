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

// Package jobrunner implements the Job Runner (C12): the per-repo sequence
// of incremental index, enrichment batches, and embedding batches. Kept
// behind a Runner interface so a subprocess boundary is the default
// deployment form while an in-process implementation remains available
// for tests.
package jobrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kraklabs/ragd/internal/model"
)

// stdioTailLimit caps how much of a job's stdout/stderr is retained.
const stdioTailLimit = 2000

// Runner executes one repo's refresh job and reports its outcome.
type Runner interface {
	Run(ctx context.Context, desc model.RepoDescriptor) (model.JobResult, error)
}

// SubprocessRunner shells out to an external binary:
// `<runner> --repo <repo_path> --workspace <workspace_path> [--profile <p>]`.
type SubprocessRunner struct {
	Command string
	Timeout time.Duration
}

func (r SubprocessRunner) Run(ctx context.Context, desc model.RepoDescriptor) (model.JobResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"--repo", desc.RepoPath, "--workspace", desc.WorkspacePath}
	if desc.Profile != "" {
		args = append(args, "--profile", desc.Profile)
	}
	cmd := exec.CommandContext(ctx, r.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	stdoutTail := tail(stdout.String(), stdioTailLimit)
	stderrTail := tail(stderr.String(), stdioTailLimit)

	if err != nil {
		exitCode := -1
		reason := stderrTail
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			if reason == "" {
				reason = fmt.Sprintf("exit_code=%d", exitCode)
			}
		} else if reason == "" {
			reason = err.Error()
		}
		return model.JobResult{
			Success:     false,
			ExitCode:    exitCode,
			ErrorReason: reason,
			StdoutTail:  stdoutTail,
			StderrTail:  stderrTail,
		}, nil
	}

	return model.JobResult{
		Success:    true,
		ExitCode:   0,
		StdoutTail: stdoutTail,
		StderrTail: stderrTail,
	}, nil
}

// tail returns the first limit characters of s (not the last).
func tail(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
