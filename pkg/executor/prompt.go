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

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/planor-ai/planor/pkg/plan"
)

// buildStepPrompt assembles the completion prompt for step i: the plan's
// name and goal, the full step list, the history of already completed
// steps, the current step's instructions and the rules text. Extra context
// from the context builder is appended when available; its failures are
// logged and ignored.
func (e *Executor) buildStepPrompt(ctx context.Context, p *plan.Plan, i int) string {
	step := &p.Todos[i]

	var b strings.Builder

	fmt.Fprintf(&b, "You are executing one step of the plan %q.\n", p.Name)
	if p.Goal != "" {
		fmt.Fprintf(&b, "Overall goal: %s\n", p.Goal)
	}
	b.WriteString("\nAll steps in the plan:\n")
	for j, title := range p.StepTitles() {
		marker := " "
		switch {
		case j < i && p.Todos[j].Status == plan.StepDone:
			marker = "x"
		case j == i:
			marker = ">"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", marker, j+1, title)
	}

	if history := doneHistory(p, i); history != "" {
		b.WriteString("\nResults of completed steps:\n")
		b.WriteString(history)
	}

	fmt.Fprintf(&b, "\nCurrent step (%d of %d): %s\n", i+1, len(p.Todos), step.Title)
	if step.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", step.Description)
	}
	fmt.Fprintf(&b, "Instructions: %s\n", step.Instructions)
	fmt.Fprintf(&b, "Expected result: %s\n", step.ExpectedResult)

	if e.rules != nil {
		if rules := strings.TrimSpace(e.rules()); rules != "" {
			b.WriteString("\nRules you must follow:\n")
			b.WriteString(rules)
			b.WriteString("\n")
		}
	}

	if e.contextBuilder != nil {
		extra, err := e.contextBuilder(ctx)
		if err != nil {
			slog.Warn("Context builder failed, continuing without extra context",
				"plan_id", p.ID,
				"step_index", i,
				"error", err)
		} else if extra != "" {
			b.WriteString("\nAdditional context:\n")
			b.WriteString(extra)
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Perform the step and respond with ONLY a JSON object in this exact shape:
{
  "resultSummary": "what was accomplished (required)",
  "artifacts": ["paths or identifiers produced"],
  "todoUpdate": {"done": true, "notes": "optional notes"},
  "errors": ["problems encountered, if any"]
}
Set todoUpdate.done to true only if the step fully succeeded.`)

	return b.String()
}

// doneHistory lists the completed steps before index i with their result
// summaries.
func doneHistory(p *plan.Plan, i int) string {
	var b strings.Builder
	for j := 0; j < i; j++ {
		s := &p.Todos[j]
		if s.Status != plan.StepDone {
			continue
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", j+1, s.Title, s.ResultSummary)
	}
	return b.String()
}
