// Copyright 2025 The Planor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planor-ai/planor/pkg/checkpoint"
	"github.com/planor-ai/planor/pkg/event"
	"github.com/planor-ai/planor/pkg/plan"
	"github.com/planor-ai/planor/pkg/session"
	"github.com/planor-ai/planor/pkg/task"
)

type mockCompletions struct {
	respond func(call int, prompt string) (string, error)
	calls   int
}

func (m *mockCompletions) Ask(_ context.Context, prompt string) (string, error) {
	m.calls++
	if m.respond == nil {
		return "```json\n{\"resultSummary\": \"ok\", \"todoUpdate\": {\"done\": true}}\n```", nil
	}
	return m.respond(m.calls, prompt)
}

func (m *mockCompletions) Model() string { return "mock-model" }

func (m *mockCompletions) Close() error { return nil }

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingSink) Emit(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingSink) count(t event.Type) int {
	n := 0
	for _, typ := range r.types() {
		if typ == t {
			n++
		}
	}
	return n
}

func testPlan(steps int) *plan.Plan {
	p := plan.New("test goal")
	p.ID = "plan-1"
	p.Name = "Test plan"
	p.Status = plan.StatusPendingConfirmation
	for i := 0; i < steps; i++ {
		p.Todos = append(p.Todos, plan.Step{
			Title:          fmt.Sprintf("Step %d", i+1),
			Description:    "desc",
			Instructions:   "do it",
			ExpectedResult: "done",
			Priority:       plan.PriorityMedium,
			EstimatedTime:  30,
			Status:         plan.StepPending,
		})
	}
	return p
}

func newTestController(t *testing.T, cfg Config) (*Controller, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	if cfg.Completions == nil {
		cfg.Completions = &mockCompletions{}
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewInMemoryService()
	}
	if cfg.Checkpoints == nil {
		cfg.Checkpoints = checkpoint.NewMemoryStore()
	}
	cfg.AppName = "planor-test"
	cfg.UserID = "tester"
	cfg.Events = sink

	c, err := New(cfg)
	require.NoError(t, err)
	return c, sink
}

func TestInitialize(t *testing.T) {
	c, sink := newTestController(t, Config{})

	sess, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 1, sink.count(event.TypeSessionCreated))
}

func TestSubmitPlan_RequiresSession(t *testing.T) {
	c, _ := newTestController(t, Config{})
	assert.ErrorIs(t, c.SubmitPlan(testPlan(2)), ErrNotInitialized)
}

func TestSubmitPlan(t *testing.T) {
	c, sink := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(2)))
	assert.Equal(t, StatePlanning, c.State())
	assert.NotNil(t, c.PendingPlan())
	assert.Equal(t, 1, sink.count(event.TypePlanSubmitted))
}

func TestConfirmPlan_NoPending(t *testing.T) {
	c, _ := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	_, err = c.ConfirmPlan(nil)
	assert.ErrorIs(t, err, ErrNoPendingPlan)
}

func TestConfirmPlan_AutoStart(t *testing.T) {
	c, sink := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, c.SubmitPlan(testPlan(3)))

	tasks, err := c.ConfirmPlan(nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Order preserved, first in progress, rest pending.
	assert.Equal(t, "Step 1", tasks[0].Title)
	assert.Equal(t, task.StatusInProgress, tasks[0].Status)
	assert.Equal(t, task.StatusPending, tasks[1].Status)
	assert.Equal(t, task.StatusPending, tasks[2].Status)

	assert.Equal(t, StateExecuting, c.State())
	assert.Nil(t, c.PendingPlan())
	require.NotNil(t, c.CurrentPlan())
	assert.Equal(t, plan.StatusConfirmed, c.CurrentPlan().Status)
	assert.Equal(t, 1, sink.count(event.TypePlanConfirmed))
	assert.Equal(t, 1, sink.count(event.TypeTaskStarted))
}

func TestRejectPlan(t *testing.T) {
	c, sink := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	p := testPlan(2)
	require.NoError(t, c.SubmitPlan(p))
	require.NoError(t, c.RejectPlan())

	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.PendingPlan())
	assert.Equal(t, plan.StatusAborted, p.Status)
	assert.Equal(t, 1, sink.count(event.TypePlanRejected))

	assert.ErrorIs(t, c.RejectPlan(), ErrNoPendingPlan)
}

func TestExecutePlan_FullFlow(t *testing.T) {
	c, sink := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	p := testPlan(3)
	require.NoError(t, c.SubmitPlan(p))
	_, err = c.ConfirmPlan(nil)
	require.NoError(t, err)

	require.NoError(t, c.ExecutePlan(context.Background()))

	assert.Equal(t, plan.StatusDone, p.Status)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.CurrentPlan())

	// Every task mirrored to completed through the step sync.
	for _, tk := range c.Queue().Tasks() {
		assert.Equal(t, task.StatusCompleted, tk.Status)
		assert.Equal(t, "ok", tk.Result)
	}
	assert.Equal(t, 3, sink.count(event.TypeTaskCompleted))
	assert.Equal(t, 3, sink.count(event.TypeStepStarted))
}

func TestExecutePlan_NonDoneStepsKeepSingleInProgress(t *testing.T) {
	// Every step reports done: false, so no task ever completes and the
	// first task stays the only active one.
	mock := &mockCompletions{
		respond: func(int, string) (string, error) {
			return "```json\n{\"resultSummary\": \"partial\", \"todoUpdate\": {\"done\": false}}\n```", nil
		},
	}
	c, _ := newTestController(t, Config{Completions: mock})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(2)))
	_, err = c.ConfirmPlan(nil)
	require.NoError(t, err)

	require.NoError(t, c.ExecutePlan(context.Background()))

	inProgress := 0
	for _, tk := range c.Queue().Tasks() {
		if tk.Status == task.StatusInProgress {
			inProgress++
		}
		assert.Equal(t, "partial", tk.Result)
	}
	assert.LessOrEqual(t, inProgress, 1, "queue must never hold more than one in_progress task")
}

type recordingMetrics struct {
	stepsExecuted  int
	stepsFailed    int
	tasksCompleted int
	tasksFailed    int
	depth          int
}

func (r *recordingMetrics) StepExecuted(time.Duration) { r.stepsExecuted++ }

func (r *recordingMetrics) StepFailed() { r.stepsFailed++ }

func (r *recordingMetrics) TaskCompleted(failed bool) {
	if failed {
		r.tasksFailed++
	} else {
		r.tasksCompleted++
	}
}

func (r *recordingMetrics) SetQueueDepth(n int) { r.depth = n }

func TestExecutePlan_RecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	c, _ := newTestController(t, Config{Metrics: metrics})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(2)))
	_, err = c.ConfirmPlan(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.depth)

	require.NoError(t, c.ExecutePlan(context.Background()))

	assert.Equal(t, 2, metrics.stepsExecuted)
	assert.Zero(t, metrics.stepsFailed)
	assert.Equal(t, 2, metrics.tasksCompleted)
	assert.Zero(t, metrics.tasksFailed)
}

func TestExecutePlan_RequiresConfirmedPlan(t *testing.T) {
	c, _ := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.ErrorIs(t, c.ExecutePlan(context.Background()), ErrNoCurrentPlan)
}

func TestResumePlan(t *testing.T) {
	mock := &mockCompletions{}
	c, _ := newTestController(t, Config{Completions: mock})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	// A plan interrupted after step 1.
	p := testPlan(3)
	p.Status = plan.StatusReady
	p.Todos[0].Status = plan.StepDone
	p.Todos[0].ResultSummary = "step one done earlier"

	require.NoError(t, c.ResumePlan(context.Background(), p, 1))

	assert.Equal(t, plan.StatusDone, p.Status)
	assert.Equal(t, 2, mock.calls)
	assert.Equal(t, StateIdle, c.State())

	tasks := c.Queue().Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, task.StatusCompleted, tasks[0].Status)
	assert.Equal(t, "step one done earlier", tasks[0].Result)
}

func TestUpdateTask_UnknownIDThrows(t *testing.T) {
	c, _ := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	_, err = c.UpdateTask(context.Background(), "ghost", task.Patch{})
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

type failingStats struct {
	calls int
}

func (f *failingStats) Refresh(context.Context) error {
	f.calls++
	return errors.New("stats backend down")
}

func TestUpdateTask_StatsFailureIsNonFatal(t *testing.T) {
	stats := &failingStats{}
	c, sink := newTestController(t, Config{Stats: stats})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(1)))
	tasks, err := c.ConfirmPlan(nil)
	require.NoError(t, err)

	completed := task.StatusCompleted
	_, err = c.UpdateTask(context.Background(), tasks[0].ID, task.Patch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.calls)
	assert.Equal(t, 1, sink.count(event.TypeWarning))
}

func TestQueueDrained_ReturnsToIdle(t *testing.T) {
	c, _ := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(2)))
	tasks, err := c.ConfirmPlan(nil)
	require.NoError(t, err)
	require.Equal(t, StateExecuting, c.State())

	completed := task.StatusCompleted
	_, err = c.UpdateTask(context.Background(), tasks[0].ID, task.Patch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, c.State())

	_, err = c.UpdateTask(context.Background(), tasks[1].ID, task.Patch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())
}

func TestRemoveTask_UnknownIDIsNoOp(t *testing.T) {
	c, _ := newTestController(t, Config{})
	_, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Nil(t, c.RemoveTask("ghost"))
}

func TestShutdown(t *testing.T) {
	sessions := session.NewInMemoryService()
	c, sink := newTestController(t, Config{Sessions: sessions})
	sess, err := c.Initialize(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, c.SubmitPlan(testPlan(2)))
	_, err = c.ConfirmPlan(nil)
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Nil(t, c.Session())
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, c.Queue().Len())
	assert.Nil(t, c.CurrentPlan())
	assert.Equal(t, 1, sink.count(event.TypeSessionCleared))

	// The session is really gone.
	_, err = sessions.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

type recordingCoordinator struct {
	actions []Action
}

func (r *recordingCoordinator) Perform(_ context.Context, a Action) (string, error) {
	r.actions = append(r.actions, a)
	return "done", nil
}

func TestPerformAction(t *testing.T) {
	coord := &recordingCoordinator{}
	c, _ := newTestController(t, Config{Actions: coord})

	out, err := c.PerformAction(context.Background(), Action{Type: "write_file", Target: "main.go"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	require.Len(t, coord.actions, 1)

	c2, _ := newTestController(t, Config{})
	_, err = c2.PerformAction(context.Background(), Action{Type: "noop"})
	assert.ErrorIs(t, err, ErrNoCoordinator)
}
