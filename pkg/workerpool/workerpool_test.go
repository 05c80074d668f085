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

package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ragd/internal/model"
	"github.com/kraklabs/ragd/pkg/statestore"
)

type blockingRunner struct {
	release chan struct{}
	seen    *sync.Map
	fail    bool
}

func (r blockingRunner) Run(_ context.Context, desc model.RepoDescriptor) (model.JobResult, error) {
	r.seen.Store(desc.RepoID, true)
	<-r.release
	if r.fail {
		return model.JobResult{Success: false, ErrorReason: "boom"}, nil
	}
	return model.JobResult{Success: true}, nil
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, model.RepoDescriptor) (model.JobResult, error) {
	panic(errors.New("kaboom"))
}

func newPool(t *testing.T, runner interface {
	Run(context.Context, model.RepoDescriptor) (model.JobResult, error)
}) (*Pool, *statestore.StateStore) {
	t.Helper()
	states := statestore.New(t.TempDir(), nil)
	p := &Pool{Size: 2, Runner: runner, States: states, TickInterval: time.Minute, BaseBackoff: time.Second, MaxBackoff: time.Hour}
	return p, states
}

func TestSubmitJobs_DropsAlreadyRunningRepo(t *testing.T) {
	release := make(chan struct{})
	var seen sync.Map
	p, _ := newPool(t, blockingRunner{release: release, seen: &seen})

	p.SubmitJobs(context.Background(), []Job{{Desc: model.RepoDescriptor{RepoID: "r1"}}})
	time.Sleep(20 * time.Millisecond)
	assert.Contains(t, p.RunningRepoIDs(), "r1")

	// second submission for the same repo should be dropped silently.
	p.SubmitJobs(context.Background(), []Job{{Desc: model.RepoDescriptor{RepoID: "r1"}}})
	close(release)
	p.Wait()
}

func TestRunJob_SuccessUpdatesStateAndClearsRunningSet(t *testing.T) {
	release := make(chan struct{})
	close(release)
	var seen sync.Map
	p, states := newPool(t, blockingRunner{release: release, seen: &seen})

	p.SubmitJobs(context.Background(), []Job{{Desc: model.RepoDescriptor{RepoID: "r1"}}})
	p.Wait()

	st := states.Get("r1")
	assert.Equal(t, model.StatusSuccess, st.LastRunStatus)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.NotContains(t, p.RunningRepoIDs(), "r1")
}

func TestRunJob_FailureAppliesBackoff(t *testing.T) {
	release := make(chan struct{})
	close(release)
	var seen sync.Map
	p, states := newPool(t, blockingRunner{release: release, seen: &seen, fail: true})

	p.SubmitJobs(context.Background(), []Job{{Desc: model.RepoDescriptor{RepoID: "r1"}}})
	p.Wait()

	st := states.Get("r1")
	assert.Equal(t, model.StatusError, st.LastRunStatus)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	require.NotNil(t, st.NextEligibleAt)
	assert.True(t, st.NextEligibleAt.After(time.Now()))
}

func TestRunJob_PanicIsRecoveredAsFailure(t *testing.T) {
	p, states := newPool(t, panicRunner{})

	p.SubmitJobs(context.Background(), []Job{{Desc: model.RepoDescriptor{RepoID: "r1"}}})
	p.Wait()

	st := states.Get("r1")
	assert.Equal(t, model.StatusError, st.LastRunStatus)
	assert.Contains(t, st.LastErrorReason, "kaboom")
}

func TestBackoffDelay_MatchesExponentialFormula(t *testing.T) {
	base := time.Second
	max := 10 * time.Second
	assert.Equal(t, time.Second, backoffDelay(base, max, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, max, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, max, 3))
	assert.Equal(t, max, backoffDelay(base, max, 10), "should clamp at max_backoff")
}

func TestBackoffDelay_ZeroFailuresIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDelay(time.Second, time.Hour, 0))
}

