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

// Package scheduler implements the Scheduler (C11): the periodic tick loop
// and the pure repo eligibility function it consults each tick.
package scheduler

import (
	"time"

	"github.com/kraklabs/ragd/internal/model"
)

// Eligible is the pure function (desc, state, now, force) → bool deciding
// whether a repo is due for a refresh. A never-run state (StatusNever) is
// always eligible; this also covers repos with no stored record, since the
// State Store returns ZeroState for unknown repos.
func Eligible(desc model.RepoDescriptor, state model.RepoState, now time.Time, force bool, tickInterval time.Duration, maxConsecutiveFailures int) bool {
	if state.LastRunStatus == model.StatusNever {
		return true
	}
	if force {
		return true
	}
	if state.LastRunStatus == model.StatusRunning {
		return false
	}
	if state.ConsecutiveFailures >= maxConsecutiveFailures {
		return false
	}
	if state.NextEligibleAt != nil && now.Before(*state.NextEligibleAt) {
		return false
	}
	if state.LastRunFinishedAt != nil {
		interval := tickInterval
		if desc.MinRefreshInterval > interval {
			interval = desc.MinRefreshInterval
		}
		if now.Sub(*state.LastRunFinishedAt) < interval {
			return false
		}
	}
	return true
}
