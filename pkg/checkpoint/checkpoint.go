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

// Package checkpoint provides durable progress snapshots for plan execution.
//
// A checkpoint is written after every executed step (success or failure) and
// captures enough state to resume: the full plan snapshot plus the index of
// the next step. After a cancellation or crash, a new process loads the
// latest checkpoint and re-invokes the executor from the saved index.
//
// Snapshots are value copies of the plan. The live plan keeps mutating after
// a checkpoint is taken; a snapshot must never alias it.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planor-ai/planor/pkg/plan"
)

// CompleteStepIndex is the sentinel step index meaning "plan complete".
const CompleteStepIndex = -1

// Checkpoint is one append-only progress record.
type Checkpoint struct {
	// ID is the unique checkpoint identifier.
	ID string `json:"id"`

	// SessionID ties the checkpoint to its orchestration session.
	SessionID string `json:"sessionId"`

	// PlanID identifies the plan being executed.
	PlanID string `json:"planId"`

	// Timestamp is when the checkpoint was written.
	Timestamp time.Time `json:"timestamp"`

	// StepIndex is the next step to execute, or CompleteStepIndex when
	// the plan finished.
	StepIndex int `json:"stepIndex"`

	// Description is a human-readable progress note.
	Description string `json:"description"`

	// Snapshot is a value copy of the plan at checkpoint time.
	Snapshot *plan.Plan `json:"snapshot"`
}

// Store persists checkpoints. Create is append-only: existing checkpoints
// are never rewritten.
type Store interface {
	// Create appends a checkpoint.
	Create(ctx context.Context, cp *Checkpoint) error

	// List returns all checkpoints for a session in creation order.
	List(ctx context.Context, sessionID string) ([]*Checkpoint, error)

	// Latest returns the most recent checkpoint for a plan.
	Latest(ctx context.Context, sessionID, planID string) (*Checkpoint, error)

	// Close releases store resources.
	Close() error
}

// ErrNotFound is returned when no checkpoint matches.
var ErrNotFound = fmt.Errorf("checkpoint not found")

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints []*Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends a checkpoint, assigning ID and timestamp when absent.
func (s *MemoryStore) Create(_ context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot store nil checkpoint")
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

// List returns all checkpoints for a session in creation order.
func (s *MemoryStore) List(_ context.Context, sessionID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Checkpoint
	for _, cp := range s.checkpoints {
		if cp.SessionID == sessionID {
			result = append(result, cp)
		}
	}
	return result, nil
}

// Latest returns the most recently created checkpoint for a plan.
func (s *MemoryStore) Latest(_ context.Context, sessionID, planID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.checkpoints) - 1; i >= 0; i-- {
		cp := s.checkpoints[i]
		if cp.SessionID == sessionID && cp.PlanID == planID {
			return cp, nil
		}
	}
	return nil, ErrNotFound
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
