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

// Package planner converts a natural-language goal into a validated plan
// with a single completion-service call.
//
// Generation is fail-fast: any failure (empty goal, transport error, no
// extractable JSON, schema violation) propagates to the caller unchanged
// and no partial plan is ever returned.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planor-ai/planor/pkg/llms"
	"github.com/planor-ai/planor/pkg/plan"
)

// ErrEmptyGoal is returned when the goal is empty after trimming.
var ErrEmptyGoal = errors.New("goal must not be empty")

// RulesProvider supplies the rules text injected into every prompt.
type RulesProvider func() string

// Generator produces plans from goals.
type Generator struct {
	completions llms.CompletionService
	rules       RulesProvider
}

// New creates a Generator. rules may be nil.
func New(completions llms.CompletionService, rules RulesProvider) *Generator {
	return &Generator{
		completions: completions,
		rules:       rules,
	}
}

// Generate turns a goal into a validated plan.
func (g *Generator) Generate(ctx context.Context, goal string) (*plan.Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}

	var rules string
	if g.rules != nil {
		rules = g.rules()
	}

	prompt := buildPlanPrompt(goal, rules)

	slog.Debug("Generating plan", "goal", goal, "model", g.completions.Model())
	response, err := g.completions.Ask(ctx, prompt)
	if err != nil {
		return nil, err
	}

	payload, err := llms.ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{}
	if err := json.Unmarshal([]byte(payload), p); err != nil {
		return nil, &plan.ValidationError{
			Code:    "invalid_json",
			Message: fmt.Sprintf("plan payload is not valid JSON: %v", err),
		}
	}

	p.Goal = goal
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	p.Status = plan.StatusPendingConfirmation

	slog.Info("Generated plan",
		"plan_id", p.ID,
		"plan_name", p.Name,
		"steps", len(p.Todos))
	return p, nil
}
