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

package task

import (
	"sync"
	"time"
)

// Queue is an ordered task collection with a single active pointer.
//
// Activation flips a pending task to in_progress, and completing, removing
// or clearing the active task auto-promotes the next pending one, so the
// queue never holds more than one in_progress task.
type Queue struct {
	mu     sync.RWMutex
	tasks  []*Task
	active string // ID of the active task, or ""
}

// EnqueueOptions controls Enqueue behavior.
type EnqueueOptions struct {
	// PreventDuplicates drops tasks whose ID is already queued.
	PreventDuplicates bool

	// SetActive makes the first newly added task the active one.
	SetActive bool
}

// UpdateOptions controls UpdateTask behavior.
type UpdateOptions struct {
	// SuppressEvents disables the auto-promotion side effect when the
	// active task completes.
	SuppressEvents bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends tasks and returns the ones actually added. With
// PreventDuplicates, tasks whose ID already exists are filtered out; if
// nothing new remains, Enqueue returns early without touching the queue.
func (q *Queue) Enqueue(tasks []*Task, opts EnqueueOptions) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := tasks
	if opts.PreventDuplicates {
		added = nil
		seen := make(map[string]bool, len(tasks))
		for _, t := range tasks {
			// Filter against the queue and against the batch itself.
			if seen[t.ID] || q.findLocked(t.ID) != nil {
				continue
			}
			seen[t.ID] = true
			added = append(added, t)
		}
	}
	if len(added) == 0 {
		return nil
	}

	q.tasks = append(q.tasks, added...)

	if opts.SetActive {
		q.activateLocked(added[0].ID)
	} else if q.active == "" {
		q.promoteNextLocked()
	}
	return added
}

// UpdateTask merges a patch into the task and stamps UpdatedAt. Returns nil
// when the ID is unknown; callers racing against removals are expected.
// CompletedAt is set exactly once, on the first transition to completed.
func (q *Queue) UpdateTask(id string, patch Patch, opts UpdateOptions) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.findLocked(id)
	if t == nil {
		return nil
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Result != nil {
		t.Result = *patch.Result
	}
	if patch.Error != nil {
		t.Error = *patch.Error
	}
	if patch.ActualTime != nil {
		t.ActualTime = *patch.ActualTime
	}
	if patch.Status != nil {
		wasCompleted := t.Status == StatusCompleted
		t.Status = *patch.Status
		if t.Status == StatusCompleted && !wasCompleted && t.CompletedAt == nil {
			now := time.Now()
			t.CompletedAt = &now
		}
	}
	t.UpdatedAt = time.Now()

	if q.active == id && t.Status.IsTerminal() {
		q.active = ""
		if !opts.SuppressEvents {
			q.promoteNextLocked()
		}
	}
	return t
}

// SetActiveTask makes the given task active, promoting it to in_progress if
// pending. An empty id clears the active pointer. Returns the activated
// task, or nil if the ID is unknown.
func (q *Queue) SetActiveTask(id string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id == "" {
		q.active = ""
		return nil
	}
	return q.activateLocked(id)
}

// Remove deletes a task. Removing the active task auto-promotes the next
// pending one. Returns the removed task, or nil if the ID is unknown.
func (q *Queue) Remove(id string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			if q.active == id {
				q.active = ""
				q.promoteNextLocked()
			}
			return t
		}
	}
	return nil
}

// Clear removes every task.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = nil
	q.active = ""
}

// Reset replaces the queue contents. The next pending task becomes active.
func (q *Queue) Reset(tasks []*Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = tasks
	q.active = ""
	for _, t := range q.tasks {
		if t.Status == StatusInProgress {
			q.active = t.ID
			break
		}
	}
	if q.active == "" {
		q.promoteNextLocked()
	}
}

// Get returns a task by ID, or nil.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.findLocked(id)
}

// Tasks returns the tasks in queue order.
func (q *Queue) Tasks() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// ActiveTask returns the active task, or nil.
func (q *Queue) ActiveTask() *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.active == "" {
		return nil
	}
	return q.findLocked(q.active)
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// Pending returns the number of pending tasks.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			n++
		}
	}
	return n
}

func (q *Queue) findLocked(id string) *Task {
	for _, t := range q.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// activateLocked makes id the active task. A previous active task that is
// still in progress reverts to pending, preserving the single in_progress
// invariant.
func (q *Queue) activateLocked(id string) *Task {
	t := q.findLocked(id)
	if t == nil {
		return nil
	}

	if q.active != "" && q.active != id {
		if prev := q.findLocked(q.active); prev != nil && prev.Status == StatusInProgress {
			prev.Status = StatusPending
			prev.UpdatedAt = time.Now()
		}
	}

	q.active = id
	if t.Status == StatusPending {
		t.Status = StatusInProgress
		t.UpdatedAt = time.Now()
	}
	return t
}

// promoteNextLocked activates the first pending task, if any.
func (q *Queue) promoteNextLocked() {
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			q.activateLocked(t.ID)
			return
		}
	}
}
