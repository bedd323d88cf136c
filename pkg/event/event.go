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

// Package event defines the lifecycle event stream emitted by the
// orchestration engine.
//
// The sink is an explicit dependency injected into the controller and
// executor; there is no process-wide emitter. Emitting is fire-and-forget:
// the engine's correctness never depends on a sink observing anything.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeSessionCreated Type = "session_created"
	TypeSessionCleared Type = "session_cleared"
	TypePlanSubmitted  Type = "plan_submitted"
	TypePlanConfirmed  Type = "plan_confirmed"
	TypePlanRejected   Type = "plan_rejected"
	TypeTaskStarted    Type = "task_started"
	TypeTaskUpdated    Type = "task_updated"
	TypeTaskCompleted  Type = "task_completed"
	TypeTaskFailed     Type = "task_failed"
	TypeStepStarted    Type = "step_started"
	TypeStateChanged   Type = "state_changed"
	TypeWarning        Type = "warning"
)

// Event is one lifecycle notification.
type Event struct {
	// ID is the unique event identifier.
	ID string

	// Type identifies the event.
	Type Type

	// Timestamp is when the event was emitted.
	Timestamp time.Time

	// SessionID ties the event to its session.
	SessionID string

	// Message is a human-readable description.
	Message string

	// Data carries event-specific payload (task ID, plan ID, step index).
	Data map[string]any
}

// Sink receives lifecycle events.
type Sink interface {
	Emit(e Event)
}

// New creates an event with ID and timestamp filled in.
func New(t Type, sessionID, message string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Message:   message,
		Data:      data,
	}
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}
