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

// Package plan defines the plan data model for Planor.
//
// A Plan is the structured, multi-step representation of a natural-language
// goal. It is produced by the planner, mutated in place by the executor
// (step status, results, timestamps) and converted into queued tasks once
// the caller confirms it.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a plan.
type Status string

const (
	// StatusDraft means the plan is being assembled.
	StatusDraft Status = "draft"

	// StatusPendingConfirmation means the plan awaits caller confirmation.
	StatusPendingConfirmation Status = "pending_confirmation"

	// StatusConfirmed means the caller accepted the plan.
	StatusConfirmed Status = "confirmed"

	// StatusReady means execution stopped cooperatively and the plan can be
	// resumed from its current step.
	StatusReady Status = "ready"

	// StatusExecuting means steps are being driven by the executor.
	StatusExecuting Status = "executing"

	// StatusDone means every step completed.
	StatusDone Status = "done"

	// StatusAborted means the plan was discarded.
	StatusAborted Status = "aborted"
)

// StepStatus represents the state of a single step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Priority orders steps by importance.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid returns whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// DefaultEstimatedTime is assigned when a step carries a missing or
// invalid time estimate (minutes).
const DefaultEstimatedTime = 30

// Step is one unit of work within a plan.
type Step struct {
	// Title is the short step name.
	Title string `json:"title"`

	// Description explains what the step covers.
	Description string `json:"description"`

	// Instructions is the prompt body handed to the completion service.
	Instructions string `json:"instructions"`

	// ExpectedResult describes what a successful step produces.
	ExpectedResult string `json:"expectedResult"`

	// Priority is high, medium or low. Defaults to medium.
	Priority Priority `json:"priority"`

	// EstimatedTime is the estimate in minutes, always >= 1.
	EstimatedTime int `json:"estimatedTime"`

	// Status is pending, done or failed.
	Status StepStatus `json:"status"`

	// ResultSummary holds the completion-service summary once the step ran.
	ResultSummary string `json:"resultSummary,omitempty"`

	// StartedAt is set once, when the step first begins executing.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// FinishedAt is updated whenever the step finishes (success or failure).
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Plan is a structured multi-step plan for a goal.
type Plan struct {
	// ID is the unique plan identifier.
	ID string `json:"id"`

	// Name is the short plan name produced by the completion service.
	Name string `json:"planName"`

	// Description summarizes the plan.
	Description string `json:"description"`

	// Goal is the original natural-language goal.
	Goal string `json:"goal"`

	// Todos are the ordered steps. Always non-empty for a valid plan.
	Todos []Step `json:"todos"`

	// Status is the plan lifecycle state.
	Status Status `json:"status"`
}

// New creates an empty draft plan for a goal.
func New(goal string) *Plan {
	return &Plan{
		ID:     uuid.New().String(),
		Goal:   goal,
		Status: StatusDraft,
	}
}

// Clone returns a deep value copy of the plan. Checkpoints snapshot plans
// through Clone so the snapshot does not alias the still-mutating original.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Todos = make([]Step, len(p.Todos))
	copy(cp.Todos, p.Todos)
	for i := range cp.Todos {
		if t := p.Todos[i].StartedAt; t != nil {
			started := *t
			cp.Todos[i].StartedAt = &started
		}
		if t := p.Todos[i].FinishedAt; t != nil {
			finished := *t
			cp.Todos[i].FinishedAt = &finished
		}
	}
	return &cp
}

// StepTitles returns the titles of all steps in order.
func (p *Plan) StepTitles() []string {
	titles := make([]string, len(p.Todos))
	for i, s := range p.Todos {
		titles[i] = s.Title
	}
	return titles
}
