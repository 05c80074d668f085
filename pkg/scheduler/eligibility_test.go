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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/ragd/internal/model"
)

func TestEligible_NeverRunIsAlwaysEligible(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	state := model.ZeroState("r1")
	assert.True(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
}

func TestEligible_RunningIsNotEligibleUnlessForced(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusRunning}
	assert.False(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
	assert.True(t, Eligible(desc, state, time.Now(), true, time.Minute, 5))
}

func TestEligible_ParkedAfterMaxConsecutiveFailures(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusError, ConsecutiveFailures: 5}
	assert.False(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
}

func TestEligible_BackoffWindowBlocksUntilNextEligibleAt(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	future := time.Now().Add(5 * time.Minute)
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusError, NextEligibleAt: &future}
	assert.False(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
}

func TestEligible_ForceOverridesBackoff(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	future := time.Now().Add(5 * time.Minute)
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusError, ConsecutiveFailures: 2, NextEligibleAt: &future}
	assert.True(t, Eligible(desc, state, time.Now(), true, time.Minute, 5))
}

func TestEligible_TooRecentSinceLastFinish(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1"}
	finished := time.Now().Add(-10 * time.Second)
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusSuccess, LastRunFinishedAt: &finished}
	assert.False(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
}

func TestEligible_MinRefreshIntervalWinsOverShorterTickInterval(t *testing.T) {
	desc := model.RepoDescriptor{RepoID: "r1", MinRefreshInterval: 10 * time.Minute}
	finished := time.Now().Add(-2 * time.Minute)
	state := model.RepoState{RepoID: "r1", LastRunStatus: model.StatusSuccess, LastRunFinishedAt: &finished}
	// tick interval is only 1 minute, but min_refresh_interval (10m) should win.
	assert.False(t, Eligible(desc, state, time.Now(), false, time.Minute, 5))
}
