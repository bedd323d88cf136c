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

package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValidationError reports a plan that violates the schema contract.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UnmarshalJSON decodes a step while tolerating sloppy estimatedTime values.
// Completion services routinely emit the estimate as a quoted number or as
// free text; anything that does not parse becomes zero and is defaulted
// during Normalize.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	aux := struct {
		*alias
		EstimatedTime json.RawMessage `json:"estimatedTime"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.EstimatedTime = parseFlexibleInt(aux.EstimatedTime)
	return nil
}

func parseFlexibleInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return int(n)
		}
	}
	return 0
}

// Normalize brings a freshly decoded plan into canonical form and validates
// the schema contract. It assigns an ID if absent, defaults per-step status
// and priority, clamps estimates, and rejects plans that are missing
// required fields.
//
// Normalize is fail-fast: the first violation is returned and the plan must
// not be used afterwards.
func (p *Plan) Normalize() error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Name == "" {
		return newValidationError("missing_plan_name", "plan is missing planName")
	}

	if len(p.Todos) == 0 {
		return newValidationError("empty_todos", "plan has no steps")
	}

	for i := range p.Todos {
		step := &p.Todos[i]
		step.Title = strings.TrimSpace(step.Title)
		step.Description = strings.TrimSpace(step.Description)
		step.Instructions = strings.TrimSpace(step.Instructions)
		step.ExpectedResult = strings.TrimSpace(step.ExpectedResult)

		if step.Title == "" {
			return newValidationError("missing_field", "step %d is missing title", i)
		}
		if step.Description == "" {
			return newValidationError("missing_field", "step %d (%s) is missing description", i, step.Title)
		}
		if step.Instructions == "" {
			return newValidationError("missing_field", "step %d (%s) is missing instructions", i, step.Title)
		}
		if step.ExpectedResult == "" {
			return newValidationError("missing_field", "step %d (%s) is missing expectedResult", i, step.Title)
		}

		if step.Status == "" {
			step.Status = StepPending
		}
		if !step.Priority.IsValid() {
			step.Priority = PriorityMedium
		}
		if step.EstimatedTime < 1 {
			step.EstimatedTime = DefaultEstimatedTime
		}
	}

	if p.Status == "" {
		p.Status = StatusDraft
	}
	return nil
}
