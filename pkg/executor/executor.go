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

// Package executor drives sequential execution of a confirmed plan.
//
// Steps run strictly one at a time, one completion-service call per step.
// Step i+1's prompt always reflects step i's completed result summary, so
// correctness depends on sequential dispatch, never parallel execution of
// steps from the same plan.
//
// Cancellation is cooperative: the context is checked only at step
// boundaries, an in-flight completion call is allowed to finish. A
// checkpoint is written after every step so a cancelled or crashed run can
// resume from the saved index.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planor-ai/planor/pkg/checkpoint"
	"github.com/planor-ai/planor/pkg/event"
	"github.com/planor-ai/planor/pkg/llms"
	"github.com/planor-ai/planor/pkg/plan"
)

// MaxSummaryLen is the longest result summary kept on a step. Longer
// summaries are compressed via the summarizer, or hard-truncated when no
// summarizer is available.
const MaxSummaryLen = 800

// ErrInvalidIndex is returned when the start index is out of range.
var ErrInvalidIndex = errors.New("start index out of range")

// StepError reports a fatal failure of a single step. The remaining steps
// are not attempted; the current index stays at the failed step so a retry
// can resume there.
type StepError struct {
	StepIndex int
	StepTitle string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepIndex, e.StepTitle, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// TaskSync mirrors step results into the task queue.
type TaskSync interface {
	UpdateFromStep(ctx context.Context, update StepUpdate) error
}

// StepUpdate carries a finished step's result to the task sync collaborator.
type StepUpdate struct {
	StepIndex int
	StepTitle string
	Done      bool
	Result    string
}

// RulesProvider supplies the rules text injected into every prompt.
type RulesProvider func() string

// ContextBuilder supplies optional extra prompt context. Failures are
// logged and ignored.
type ContextBuilder func(ctx context.Context) (string, error)

// Summarizer compresses oversized step results.
type Summarizer func(ctx context.Context, text string) (string, error)

// TokenCounter reports the token cost of a prompt, for budget logging.
type TokenCounter interface {
	Count(text string) int
}

// StepMetrics records step outcomes and completion-call latency. A side
// channel only; execution never depends on it.
type StepMetrics interface {
	StepExecuted(duration time.Duration)
	StepFailed()
}

// Executor runs plan steps sequentially.
type Executor struct {
	completions    llms.CompletionService
	checkpoints    checkpoint.Store
	events         event.Sink
	taskSync       TaskSync
	rules          RulesProvider
	contextBuilder ContextBuilder
	summarizer     Summarizer
	counter        TokenCounter
	metrics        StepMetrics
	sessionID      string

	current int
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventSink sets the lifecycle event sink.
func WithEventSink(sink event.Sink) Option {
	return func(e *Executor) { e.events = sink }
}

// WithTaskSync sets the task-sync collaborator.
func WithTaskSync(sync TaskSync) Option {
	return func(e *Executor) { e.taskSync = sync }
}

// WithRules sets the rules provider.
func WithRules(rules RulesProvider) Option {
	return func(e *Executor) { e.rules = rules }
}

// WithContextBuilder sets the optional extra-context provider.
func WithContextBuilder(builder ContextBuilder) Option {
	return func(e *Executor) { e.contextBuilder = builder }
}

// WithSummarizer sets the optional result summarizer.
func WithSummarizer(summarizer Summarizer) Option {
	return func(e *Executor) { e.summarizer = summarizer }
}

// WithTokenCounter enables prompt token logging.
func WithTokenCounter(counter TokenCounter) Option {
	return func(e *Executor) { e.counter = counter }
}

// WithStepMetrics sets the step metrics recorder.
func WithStepMetrics(metrics StepMetrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithSessionID ties checkpoints and events to a session.
func WithSessionID(sessionID string) Option {
	return func(e *Executor) { e.sessionID = sessionID }
}

// New creates an Executor.
func New(completions llms.CompletionService, checkpoints checkpoint.Store, opts ...Option) *Executor {
	e := &Executor{
		completions: completions,
		checkpoints: checkpoints,
		events:      event.NopSink{},
		current:     checkpoint.CompleteStepIndex,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentStepIndex returns the next step to execute, or
// checkpoint.CompleteStepIndex once the plan finished. After a failure it
// points at the failed step so a retry can resume there.
func (e *Executor) CurrentStepIndex() int {
	return e.current
}

// Execute runs plan steps from startIndex to the end, mutating p in place.
//
// Cancellation is a soft stop, not an error: the plan status becomes
// "ready", the current index stays at the unstarted step, and Execute
// returns nil. A step failure marks the step failed, writes a best-effort
// error checkpoint and returns a *StepError; remaining steps are not
// attempted.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, startIndex int) error {
	if startIndex < 0 || startIndex >= len(p.Todos) {
		return fmt.Errorf("%w: %d (plan has %d steps)", ErrInvalidIndex, startIndex, len(p.Todos))
	}

	total := len(p.Todos)
	for i := startIndex; i < total; i++ {
		// Cooperative cancellation, checked only at step boundaries.
		if ctx.Err() != nil {
			p.Status = plan.StatusReady
			e.current = i
			slog.Info("Execution cancelled",
				"plan_id", p.ID,
				"step_index", i)
			return nil
		}

		p.Status = plan.StatusExecuting
		e.current = i
		step := &p.Todos[i]

		e.events.Emit(event.New(event.TypeStepStarted, e.sessionID, step.Title, map[string]any{
			"plan_id":    p.ID,
			"step_index": i,
		}))

		if err := e.runStep(ctx, p, i); err != nil {
			now := time.Now()
			step.Status = plan.StepFailed
			step.FinishedAt = &now
			if e.metrics != nil {
				e.metrics.StepFailed()
			}

			e.writeCheckpoint(ctx, p, i,
				fmt.Sprintf("step %d/%d failed: %v", i+1, total, err))

			e.current = i
			return &StepError{StepIndex: i, StepTitle: step.Title, Err: err}
		}

		e.current = i + 1
		e.writeCheckpoint(ctx, p, i+1,
			fmt.Sprintf("progress %d/%d", i+1, total))
	}

	p.Status = plan.StatusDone
	e.current = checkpoint.CompleteStepIndex
	e.writeCheckpoint(ctx, p, checkpoint.CompleteStepIndex, "plan complete")
	slog.Info("Plan complete", "plan_id", p.ID, "steps", total)
	return nil
}

// runStep performs one completion call for a step and applies the result.
func (e *Executor) runStep(ctx context.Context, p *plan.Plan, i int) error {
	step := &p.Todos[i]

	started := time.Now()
	if step.StartedAt == nil {
		step.StartedAt = &started
	}

	prompt := e.buildStepPrompt(ctx, p, i)
	if e.counter != nil {
		slog.Debug("Step prompt assembled",
			"plan_id", p.ID,
			"step_index", i,
			"prompt_tokens", e.counter.Count(prompt))
	}

	callStart := time.Now()
	response, err := e.completions.Ask(ctx, prompt)
	callDuration := time.Since(callStart)
	if err != nil {
		return err
	}

	result, err := parseStepResult(response)
	if err != nil {
		return err
	}

	summary := result.ResultSummary
	if len([]rune(summary)) > MaxSummaryLen {
		summary = e.compress(ctx, summary)
	}

	finished := time.Now()
	if result.TodoUpdate.Done {
		step.Status = plan.StepDone
	} else {
		step.Status = plan.StepPending
	}
	step.ResultSummary = summary
	step.FinishedAt = &finished

	if e.taskSync != nil {
		if err := e.taskSync.UpdateFromStep(ctx, StepUpdate{
			StepIndex: i,
			StepTitle: step.Title,
			Done:      result.TodoUpdate.Done,
			Result:    summary,
		}); err != nil {
			return fmt.Errorf("task sync failed: %w", err)
		}
	}

	if e.metrics != nil {
		e.metrics.StepExecuted(callDuration)
	}
	return nil
}

// compress shrinks an oversized summary, falling back to hard truncation
// when the summarizer is absent or fails.
func (e *Executor) compress(ctx context.Context, summary string) string {
	if e.summarizer != nil {
		compressed, err := e.summarizer(ctx, summary)
		if err == nil && compressed != "" {
			return compressed
		}
		if err != nil {
			slog.Warn("Summarizer failed, truncating result", "error", err)
			e.events.Emit(event.New(event.TypeWarning, e.sessionID,
				"summarizer failed, truncating result", map[string]any{
					"error": err.Error(),
				}))
		}
	}
	return string([]rune(summary)[:MaxSummaryLen])
}

// writeCheckpoint appends a progress record. Checkpoint failures are logged
// and never abort execution.
func (e *Executor) writeCheckpoint(ctx context.Context, p *plan.Plan, nextIndex int, description string) {
	if e.checkpoints == nil {
		return
	}

	cp := &checkpoint.Checkpoint{
		SessionID:   e.sessionID,
		PlanID:      p.ID,
		StepIndex:   nextIndex,
		Description: description,
		Snapshot:    p.Clone(),
	}
	// Progress must survive cancellation of the run context.
	if err := e.checkpoints.Create(context.WithoutCancel(ctx), cp); err != nil {
		slog.Warn("Failed to write checkpoint",
			"plan_id", p.ID,
			"step_index", nextIndex,
			"error", err)
		e.events.Emit(event.New(event.TypeWarning, e.sessionID,
			"failed to write checkpoint", map[string]any{
				"plan_id":    p.ID,
				"step_index": nextIndex,
				"error":      err.Error(),
			}))
	}
}
