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

// Package agent provides the controller that owns one orchestration session:
// the pending/confirmed plan, the task queue and the executing state machine.
//
// A controller instance is bound to exactly one session and must not be
// shared across concurrent orchestration flows. All state lives on the
// instance; events go to an injected sink.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/planor-ai/planor/pkg/checkpoint"
	"github.com/planor-ai/planor/pkg/event"
	"github.com/planor-ai/planor/pkg/executor"
	"github.com/planor-ai/planor/pkg/llms"
	"github.com/planor-ai/planor/pkg/plan"
	"github.com/planor-ai/planor/pkg/session"
	"github.com/planor-ai/planor/pkg/task"
)

// State is the controller's coarse lifecycle state. Plan confirmation and
// rejection are transient operations, not states.
type State string

const (
	// StateIdle means no plan is being generated or executed.
	StateIdle State = "idle"

	// StatePlanning means a plan is stored and awaits confirmation.
	StatePlanning State = "planning"

	// StateExecuting means a confirmed plan's tasks are being worked.
	StateExecuting State = "executing"
)

// Errors
var (
	ErrNotInitialized = errors.New("controller has no active session")
	ErrNoPendingPlan  = errors.New("no plan awaiting confirmation")
	ErrNoCurrentPlan  = errors.New("no confirmed plan to execute")
	ErrNoCoordinator  = errors.New("no action coordinator configured")
)

// MemoryStats refreshes memory and telemetry after a task reaches a
// terminal state. Failures are logged and never escalate.
type MemoryStats interface {
	Refresh(ctx context.Context) error
}

// Metrics receives engine telemetry: step outcomes and completion-call
// latency from the executor, terminal task transitions and queue depth
// from the controller.
type Metrics interface {
	executor.StepMetrics
	TaskCompleted(failed bool)
	SetQueueDepth(n int)
}

// Action is a delegated file or code operation. The controller forwards it
// untouched; action outcomes are not controller state.
type Action struct {
	Type    string
	Target  string
	Payload map[string]any
}

// ActionCoordinator executes delegated actions outside the orchestration
// core.
type ActionCoordinator interface {
	Perform(ctx context.Context, action Action) (string, error)
}

// Config carries the controller's collaborators. Completions, Checkpoints
// and Sessions are required; the rest are optional.
type Config struct {
	AppName string
	UserID  string

	Completions llms.CompletionService
	Checkpoints checkpoint.Store
	Sessions    session.Service

	Events         event.Sink
	Rules          executor.RulesProvider
	Summarizer     executor.Summarizer
	ContextBuilder executor.ContextBuilder
	Counter        executor.TokenCounter
	Stats          MemoryStats
	Metrics        Metrics
	Actions        ActionCoordinator
}

// Controller is the per-session orchestration state machine.
type Controller struct {
	cfg    Config
	events event.Sink

	mu      sync.Mutex
	state   State
	session *session.Session
	queue   *task.Queue
	exec    *executor.Executor

	// pending awaits confirmation; current is the confirmed plan being
	// executed.
	pending *plan.Plan
	current *plan.Plan

	// stepTasks maps step index to task ID for the current plan.
	stepTasks []string
}

// New creates an uninitialized controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Completions == nil {
		return nil, fmt.Errorf("agent: completion service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("agent: session service is required")
	}

	events := cfg.Events
	if events == nil {
		events = event.NopSink{}
	}
	return &Controller{
		cfg:    cfg,
		events: events,
		state:  StateIdle,
		queue:  task.NewQueue(),
	}, nil
}

// Initialize creates (or adopts) the session and prepares the executor.
// sessionID may be empty to generate one.
func (c *Controller) Initialize(ctx context.Context, sessionID string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.cfg.Sessions.Create(ctx, c.cfg.AppName, c.cfg.UserID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	c.session = sess
	c.state = StateIdle

	c.exec = executor.New(c.cfg.Completions, c.cfg.Checkpoints,
		executor.WithSessionID(sess.ID),
		executor.WithEventSink(c.events),
		executor.WithTaskSync(c),
		executor.WithRules(c.cfg.Rules),
		executor.WithSummarizer(c.cfg.Summarizer),
		executor.WithContextBuilder(c.cfg.ContextBuilder),
		executor.WithTokenCounter(c.cfg.Counter),
		executor.WithStepMetrics(c.cfg.Metrics),
	)

	c.events.Emit(event.New(event.TypeSessionCreated, sess.ID, "session created", nil))
	slog.Info("Controller initialized", "session_id", sess.ID)
	return sess, nil
}

// Shutdown clears the plan, queue and state, and deletes the session.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	sessID := c.session.ID

	c.queue.Clear()
	c.recordQueueDepth()
	c.pending = nil
	c.current = nil
	c.stepTasks = nil
	c.setStateLocked(StateIdle)

	if err := c.cfg.Sessions.Delete(ctx, sessID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	c.session = nil

	c.events.Emit(event.New(event.TypeSessionCleared, sessID, "session cleared", nil))
	return nil
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the active session, or nil.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Queue exposes the task queue for read access.
func (c *Controller) Queue() *task.Queue {
	return c.queue
}

// PendingPlan returns the plan awaiting confirmation, or nil.
func (c *Controller) PendingPlan() *plan.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// CurrentPlan returns the confirmed plan, or nil.
func (c *Controller) CurrentPlan() *plan.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SubmitPlan stores a plan as pending confirmation and moves the controller
// to the planning state.
func (c *Controller) SubmitPlan(p *plan.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNotInitialized
	}

	c.pending = p
	c.setStateLocked(StatePlanning)

	c.events.Emit(event.New(event.TypePlanSubmitted, c.session.ID, p.Name, map[string]any{
		"plan_id": p.ID,
		"steps":   len(p.Todos),
	}))
	return nil
}

// ConfirmOptions controls plan confirmation.
type ConfirmOptions struct {
	// AutoStart activates the first task immediately.
	AutoStart bool
}

// ConfirmPlan turns the pending plan's steps into queued tasks, preserving
// order, and moves to executing. A nil opts means AutoStart. With AutoStart
// the first task is activated explicitly; otherwise the queue's own
// promotion applies.
func (c *Controller) ConfirmPlan(opts *ConfirmOptions) ([]*task.Task, error) {
	if opts == nil {
		opts = &ConfirmOptions{AutoStart: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNotInitialized
	}
	if c.pending == nil {
		return nil, ErrNoPendingPlan
	}

	p := c.pending
	p.Status = plan.StatusConfirmed

	tasks := make([]*task.Task, 0, len(p.Todos))
	for _, step := range p.Todos {
		tasks = append(tasks, task.FromStep(p, step, c.session.ID))
	}

	added := c.queue.Enqueue(tasks, task.EnqueueOptions{SetActive: opts.AutoStart})
	c.recordQueueDepth()

	c.stepTasks = make([]string, len(tasks))
	for i, t := range tasks {
		c.stepTasks[i] = t.ID
	}

	c.current = p
	c.pending = nil
	if len(added) > 0 {
		c.setStateLocked(StateExecuting)
	}

	c.events.Emit(event.New(event.TypePlanConfirmed, c.session.ID, p.Name, map[string]any{
		"plan_id":    p.ID,
		"tasks":      len(added),
		"auto_start": opts.AutoStart,
	}))

	if active := c.queue.ActiveTask(); active != nil {
		c.events.Emit(event.New(event.TypeTaskStarted, c.session.ID, active.Title, map[string]any{
			"task_id": active.ID,
		}))
	}
	return added, nil
}

// RejectPlan discards the pending plan and returns to idle.
func (c *Controller) RejectPlan() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return ErrNoPendingPlan
	}

	p := c.pending
	p.Status = plan.StatusAborted
	c.pending = nil
	c.setStateLocked(StateIdle)

	c.events.Emit(event.New(event.TypePlanRejected, c.sessionIDLocked(), p.Name, map[string]any{
		"plan_id": p.ID,
	}))
	return nil
}

// ExecutePlan runs the confirmed plan's steps from where the executor left
// off. Cancellation via ctx is a soft stop; see executor.Execute.
func (c *Controller) ExecutePlan(ctx context.Context) error {
	c.mu.Lock()
	p := c.current
	exec := c.exec
	c.mu.Unlock()

	if exec == nil {
		return ErrNotInitialized
	}
	if p == nil {
		return ErrNoCurrentPlan
	}

	start := exec.CurrentStepIndex()
	if start == checkpoint.CompleteStepIndex {
		start = 0
	}
	return c.runPlan(ctx, p, start)
}

// ResumePlan restores a checkpointed plan and continues from startIndex.
func (c *Controller) ResumePlan(ctx context.Context, p *plan.Plan, startIndex int) error {
	c.mu.Lock()
	if c.exec == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.current = p
	c.pending = nil

	// Rebuild the queue to mirror the restored plan's progress.
	tasks := make([]*task.Task, 0, len(p.Todos))
	c.stepTasks = make([]string, len(p.Todos))
	for i, step := range p.Todos {
		t := task.FromStep(p, step, c.session.ID)
		if step.Status == plan.StepDone {
			t.Status = task.StatusCompleted
			t.Result = step.ResultSummary
		}
		tasks = append(tasks, t)
		c.stepTasks[i] = t.ID
	}
	c.queue.Reset(tasks)
	c.recordQueueDepth()
	c.setStateLocked(StateExecuting)
	c.mu.Unlock()

	return c.runPlan(ctx, p, startIndex)
}

func (c *Controller) runPlan(ctx context.Context, p *plan.Plan, startIndex int) error {
	c.mu.Lock()
	c.setStateLocked(StateExecuting)
	exec := c.exec
	c.mu.Unlock()

	err := exec.Execute(ctx, p, startIndex)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Status == plan.StatusDone {
		c.current = nil
		c.stepTasks = nil
		c.setStateLocked(StateIdle)
	}
	return err
}

// UpdateFromStep mirrors an executed step's result into the matching task.
// It is the executor's task-sync collaborator.
func (c *Controller) UpdateFromStep(ctx context.Context, update executor.StepUpdate) error {
	c.mu.Lock()
	var taskID string
	if update.StepIndex >= 0 && update.StepIndex < len(c.stepTasks) {
		taskID = c.stepTasks[update.StepIndex]
	}
	c.mu.Unlock()

	if taskID == "" {
		return fmt.Errorf("no task for step %d", update.StepIndex)
	}

	// A non-done step records its result but leaves the task status alone.
	// Only queue activation may mark a task in_progress, which keeps the
	// single-active invariant intact.
	patch := task.Patch{Result: &update.Result}
	if update.Done {
		completed := task.StatusCompleted
		patch.Status = &completed
	}
	_, err := c.UpdateTask(ctx, taskID, patch)
	return err
}

// EnqueueTasks appends tasks to the queue and emits lifecycle events for
// the ones actually added.
func (c *Controller) EnqueueTasks(tasks []*task.Task, opts task.EnqueueOptions) []*task.Task {
	added := c.queue.Enqueue(tasks, opts)
	c.recordQueueDepth()
	for _, t := range added {
		c.events.Emit(event.New(event.TypeTaskUpdated, t.SessionID, "task enqueued", map[string]any{
			"task_id": t.ID,
			"title":   t.Title,
		}))
	}
	return added
}

// UpdateTask patches a queued task. Unlike the queue itself this is the one
// operation that fails loudly on an unknown id, since callers are expected
// to only reference tasks they created. Terminal transitions refresh the
// memory stats collaborator; its failures are logged, never returned.
func (c *Controller) UpdateTask(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	t := c.queue.UpdateTask(id, patch, task.UpdateOptions{})
	if t == nil {
		return nil, task.ErrTaskNotFound
	}

	sessID := t.SessionID
	switch {
	case t.Status == task.StatusCompleted:
		c.events.Emit(event.New(event.TypeTaskCompleted, sessID, t.Title, map[string]any{"task_id": t.ID}))
	case t.Status == task.StatusFailed:
		c.events.Emit(event.New(event.TypeTaskFailed, sessID, t.Title, map[string]any{"task_id": t.ID}))
	default:
		c.events.Emit(event.New(event.TypeTaskUpdated, sessID, t.Title, map[string]any{"task_id": t.ID}))
	}

	if t.Status.IsTerminal() {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.TaskCompleted(t.Status == task.StatusFailed)
		}
		c.refreshStats(ctx, sessID)
		c.maybeIdle()
	}
	return t, nil
}

// RemoveTask deletes a task from the queue. Unknown ids are a no-op since
// removal races with UI-driven callers are expected.
func (c *Controller) RemoveTask(id string) *task.Task {
	t := c.queue.Remove(id)
	if t == nil {
		return nil
	}
	c.recordQueueDepth()
	c.events.Emit(event.New(event.TypeTaskUpdated, t.SessionID, "task removed", map[string]any{
		"task_id": t.ID,
	}))
	c.maybeIdle()
	return t
}

// ClearQueue drops every queued task and returns the controller to idle.
func (c *Controller) ClearQueue() {
	c.queue.Clear()
	c.recordQueueDepth()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(StateIdle)
}

// PerformAction forwards a delegated file or code operation to the action
// coordinator.
func (c *Controller) PerformAction(ctx context.Context, action Action) (string, error) {
	if c.cfg.Actions == nil {
		return "", ErrNoCoordinator
	}
	return c.cfg.Actions.Perform(ctx, action)
}

// refreshStats invokes the memory stats collaborator, best effort.
func (c *Controller) refreshStats(ctx context.Context, sessionID string) {
	if c.cfg.Stats == nil {
		return
	}
	if err := c.cfg.Stats.Refresh(ctx); err != nil {
		slog.Warn("Memory stats refresh failed", "error", err)
		c.events.Emit(event.New(event.TypeWarning, sessionID,
			"memory stats refresh failed", map[string]any{
				"error": err.Error(),
			}))
	}
}

// recordQueueDepth pushes the queue size to the metrics collaborator.
func (c *Controller) recordQueueDepth() {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SetQueueDepth(c.queue.Len())
	}
}

// maybeIdle drops back to idle once the queue has no active or pending
// work left.
func (c *Controller) maybeIdle() {
	if c.queue.ActiveTask() != nil || c.queue.Pending() > 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateExecuting {
		c.setStateLocked(StateIdle)
	}
}

// setStateLocked transitions the state and emits a state-changed event.
// Callers hold c.mu.
func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next

	c.events.Emit(event.New(event.TypeStateChanged, c.sessionIDLocked(), string(next), map[string]any{
		"from": string(prev),
		"to":   string(next),
	}))
	slog.Debug("State changed", "from", prev, "to", next)
}

func (c *Controller) sessionIDLocked() string {
	if c.session == nil {
		return ""
	}
	return c.session.ID
}
