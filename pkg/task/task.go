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

// Package task provides the task model and the ordered task queue.
//
// A Task is the queued, independently tracked execution unit derived from a
// confirmed plan step. The queue maintains a single "active" pointer and
// guarantees by construction that at most one task is in progress at any
// time within a session.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/planor-ai/planor/pkg/plan"
)

// Status represents the state of a task.
type Status string

const (
	// StatusPending means the task waits in the queue.
	StatusPending Status = "pending"

	// StatusInProgress means the task is the active one.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed means the task failed.
	StatusFailed Status = "failed"
)

// IsTerminal returns whether this state is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the queued execution unit derived from a confirmed plan step.
type Task struct {
	// ID is the unique task identifier.
	ID string `json:"id"`

	// Title is the short task name, taken from the plan step.
	Title string `json:"title"`

	// Description explains what the task covers.
	Description string `json:"description"`

	// Goal is the originating plan goal.
	Goal string `json:"goal"`

	// Status is pending, in_progress, completed or failed.
	Status Status `json:"status"`

	// Priority is inherited from the plan step.
	Priority plan.Priority `json:"priority"`

	// EstimatedTime is the step estimate in minutes.
	EstimatedTime int `json:"estimatedTime"`

	// ActualTime is the measured time in minutes, once known.
	ActualTime int `json:"actualTime,omitempty"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the task was last updated.
	UpdatedAt time.Time `json:"updatedAt"`

	// CompletedAt is set exactly once, on the first transition to completed.
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Result holds the task outcome.
	Result string `json:"result,omitempty"`

	// Error holds the failure reason for failed tasks.
	Error string `json:"error,omitempty"`

	// SessionID ties the task to its orchestration session.
	SessionID string `json:"sessionId"`
}

// FromStep derives a task from a plan step.
func FromStep(p *plan.Plan, step plan.Step, sessionID string) *Task {
	now := time.Now()
	return &Task{
		ID:            uuid.New().String(),
		Title:         step.Title,
		Description:   step.Description,
		Goal:          p.Goal,
		Status:        StatusPending,
		Priority:      step.Priority,
		EstimatedTime: step.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
		SessionID:     sessionID,
	}
}

// Patch carries a partial task update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Result      *string
	Error       *string
	ActualTime  *int
}

// Errors
var (
	ErrTaskNotFound = &TaskError{Code: "task_not_found", Message: "task not found"}
)

// TaskError is a task-related error.
type TaskError struct {
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return e.Message
}
