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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planor-ai/planor/pkg/plan"
)

func newTask(id string) *Task {
	now := time.Now()
	return &Task{
		ID:            id,
		Title:         "task " + id,
		Description:   "desc",
		Status:        StatusPending,
		Priority:      plan.PriorityMedium,
		EstimatedTime: 30,
		CreatedAt:     now,
		UpdatedAt:     now,
		SessionID:     "sess-1",
	}
}

// assertSingleInProgress checks the queue-wide invariant.
func assertSingleInProgress(t *testing.T, q *Queue) {
	t.Helper()
	inProgress := 0
	for _, task := range q.Tasks() {
		if task.Status == StatusInProgress {
			inProgress++
		}
	}
	assert.LessOrEqual(t, inProgress, 1, "more than one in_progress task")
}

func TestEnqueue_AutoPromotesFirstPending(t *testing.T) {
	q := NewQueue()
	added := q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{})

	require.Len(t, added, 2)
	require.NotNil(t, q.ActiveTask())
	assert.Equal(t, "a", q.ActiveTask().ID)
	assert.Equal(t, StatusInProgress, q.Get("a").Status)
	assert.Equal(t, StatusPending, q.Get("b").Status)
	assertSingleInProgress(t, q)
}

func TestEnqueue_PreventDuplicates(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a")}, EnqueueOptions{})

	added := q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{PreventDuplicates: true})
	require.Len(t, added, 1)
	assert.Equal(t, "b", added[0].ID)
	assert.Equal(t, 2, q.Len())

	// Nothing new: early return, queue untouched.
	added = q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{PreventDuplicates: true})
	assert.Empty(t, added)
	assert.Equal(t, 2, q.Len())
}

func TestEnqueue_PreventDuplicatesWithinBatch(t *testing.T) {
	q := NewQueue()

	// The same ID twice in one batch must only be added once.
	added := q.Enqueue([]*Task{newTask("a"), newTask("a"), newTask("b")},
		EnqueueOptions{PreventDuplicates: true})
	require.Len(t, added, 2)
	assert.Equal(t, "a", added[0].ID)
	assert.Equal(t, "b", added[1].ID)
	assert.Equal(t, 2, q.Len())
}

func TestEnqueue_SetActive(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a")}, EnqueueOptions{})
	require.Equal(t, "a", q.ActiveTask().ID)

	q.Enqueue([]*Task{newTask("b")}, EnqueueOptions{SetActive: true})
	assert.Equal(t, "b", q.ActiveTask().ID)
	assert.Equal(t, StatusInProgress, q.Get("b").Status)

	// The demoted task went back to pending, keeping the invariant.
	assert.Equal(t, StatusPending, q.Get("a").Status)
	assertSingleInProgress(t, q)
}

func TestUpdateTask_UnknownIDReturnsNil(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.UpdateTask("ghost", Patch{}, UpdateOptions{}))
}

func TestUpdateTask_CompletedAtSetOnce(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a")}, EnqueueOptions{})

	completed := StatusCompleted
	updated := q.UpdateTask("a", Patch{Status: &completed}, UpdateOptions{})
	require.NotNil(t, updated)
	require.NotNil(t, updated.CompletedAt)
	first := *updated.CompletedAt

	// A second completion must not move the stamp.
	pending := StatusPending
	q.UpdateTask("a", Patch{Status: &pending}, UpdateOptions{})
	q.UpdateTask("a", Patch{Status: &completed}, UpdateOptions{})
	assert.Equal(t, first, *q.Get("a").CompletedAt)
}

func TestUpdateTask_CompletionPromotesNext(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a"), newTask("b"), newTask("c")}, EnqueueOptions{})
	require.Equal(t, "a", q.ActiveTask().ID)

	completed := StatusCompleted
	q.UpdateTask("a", Patch{Status: &completed}, UpdateOptions{})

	require.NotNil(t, q.ActiveTask())
	assert.Equal(t, "b", q.ActiveTask().ID)
	assert.Equal(t, StatusInProgress, q.Get("b").Status)
	assertSingleInProgress(t, q)
}

func TestUpdateTask_SuppressEventsSkipsPromotion(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{})

	failed := StatusFailed
	q.UpdateTask("a", Patch{Status: &failed}, UpdateOptions{SuppressEvents: true})

	assert.Nil(t, q.ActiveTask())
	assert.Equal(t, StatusPending, q.Get("b").Status)
}

func TestRemove_ActivePromotesNext(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{})

	removed := q.Remove("a")
	require.NotNil(t, removed)
	assert.Equal(t, "a", removed.ID)

	require.NotNil(t, q.ActiveTask())
	assert.Equal(t, "b", q.ActiveTask().ID)
	assertSingleInProgress(t, q)
}

func TestRemove_UnknownIDIsNoOp(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a")}, EnqueueOptions{})

	assert.Nil(t, q.Remove("ghost"))
	assert.Equal(t, 1, q.Len())
}

func TestClear(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a"), newTask("b")}, EnqueueOptions{})

	q.Clear()
	assert.Zero(t, q.Len())
	assert.Nil(t, q.ActiveTask())
}

func TestReset(t *testing.T) {
	q := NewQueue()
	q.Enqueue([]*Task{newTask("a")}, EnqueueOptions{})

	q.Reset([]*Task{newTask("x"), newTask("y")})
	assert.Equal(t, 2, q.Len())
	require.NotNil(t, q.ActiveTask())
	assert.Equal(t, "x", q.ActiveTask().ID)
	assertSingleInProgress(t, q)
}

func TestQueue_InvariantUnderChurn(t *testing.T) {
	q := NewQueue()

	var tasks []*Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, newTask(fmt.Sprintf("t%d", i)))
	}
	q.Enqueue(tasks, EnqueueOptions{})

	completed := StatusCompleted
	failed := StatusFailed
	for i := 0; i < 10; i++ {
		active := q.ActiveTask()
		require.NotNil(t, active)

		status := &completed
		if i%3 == 0 {
			status = &failed
		}
		q.UpdateTask(active.ID, Patch{Status: status}, UpdateOptions{})
		assertSingleInProgress(t, q)
	}

	assert.Nil(t, q.ActiveTask())
	assert.Zero(t, q.Pending())
}
