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

package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planor-ai/planor/pkg/agent"
)

// Metrics serves as both controller collaborators.
var (
	_ agent.Metrics     = (*Metrics)(nil)
	_ agent.MemoryStats = (*Metrics)(nil)
)

func TestMetrics_Endpoint(t *testing.T) {
	m := NewMetrics()

	m.PlanGenerated()
	m.StepExecuted(250 * time.Millisecond)
	m.StepFailed()
	m.TaskCompleted(false)
	m.TaskCompleted(true)
	m.SetQueueDepth(3)
	require.NoError(t, m.Refresh(context.Background()))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, "planor_plans_generated_total 1")
	assert.Contains(t, out, "planor_steps_executed_total 1")
	assert.Contains(t, out, "planor_steps_failed_total 1")
	assert.Contains(t, out, "planor_tasks_completed_total 1")
	assert.Contains(t, out, "planor_tasks_failed_total 1")
	assert.Contains(t, out, "planor_queue_depth 3")
	assert.Contains(t, out, "planor_stats_refreshes_total 1")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()
	a.PlanGenerated()
	assert.NotNil(t, b)
}
