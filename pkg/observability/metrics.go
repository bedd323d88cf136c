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

// Package observability exposes Prometheus metrics for the orchestration
// engine.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	plansGenerated prometheus.Counter
	stepsExecuted  prometheus.Counter
	stepsFailed    prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	callDuration   prometheus.Histogram
	queueDepth     prometheus.Gauge
	statsRefreshes prometheus.Counter
}

// NewMetrics creates and registers the engine instruments on a private
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		plansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_plans_generated_total",
			Help: "Total plans generated.",
		}),
		stepsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_steps_executed_total",
			Help: "Total plan steps executed.",
		}),
		stepsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_steps_failed_total",
			Help: "Total plan steps that failed.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_tasks_completed_total",
			Help: "Total tasks completed.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_tasks_failed_total",
			Help: "Total tasks failed.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planor_completion_call_duration_seconds",
			Help:    "Completion service call duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planor_queue_depth",
			Help: "Number of tasks currently queued.",
		}),
		statsRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planor_stats_refreshes_total",
			Help: "Total memory stats refreshes.",
		}),
	}

	registry.MustRegister(
		m.plansGenerated,
		m.stepsExecuted,
		m.stepsFailed,
		m.tasksCompleted,
		m.tasksFailed,
		m.callDuration,
		m.queueDepth,
		m.statsRefreshes,
	)
	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PlanGenerated records one generated plan.
func (m *Metrics) PlanGenerated() {
	m.plansGenerated.Inc()
}

// StepExecuted records one executed step and its completion-call duration.
func (m *Metrics) StepExecuted(duration time.Duration) {
	m.stepsExecuted.Inc()
	m.callDuration.Observe(duration.Seconds())
}

// StepFailed records one failed step.
func (m *Metrics) StepFailed() {
	m.stepsFailed.Inc()
}

// TaskCompleted records a terminal task transition.
func (m *Metrics) TaskCompleted(failed bool) {
	if failed {
		m.tasksFailed.Inc()
	} else {
		m.tasksCompleted.Inc()
	}
}

// SetQueueDepth records the current queue size.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Refresh implements the controller's memory-stats collaborator.
func (m *Metrics) Refresh(_ context.Context) error {
	m.statsRefreshes.Inc()
	return nil
}
