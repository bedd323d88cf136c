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
	"encoding/json"
	"fmt"

	"github.com/planor-ai/planor/pkg/llms"
)

// StepResult is the structured outcome the completion service must return
// for each step.
type StepResult struct {
	// ResultSummary describes what the step accomplished. Required.
	ResultSummary string `json:"resultSummary"`

	// Artifacts lists paths or identifiers the step produced.
	Artifacts []string `json:"artifacts,omitempty"`

	// TodoUpdate reports whether the step is done.
	TodoUpdate TodoUpdate `json:"todoUpdate"`

	// Errors lists non-fatal problems the step ran into.
	Errors []string `json:"errors,omitempty"`
}

// TodoUpdate is the completion flag for a step.
type TodoUpdate struct {
	Done  bool   `json:"done"`
	Notes string `json:"notes,omitempty"`
}

// parseStepResult extracts and validates the step-result JSON from a raw
// completion response.
func parseStepResult(response string) (*StepResult, error) {
	payload, err := llms.ExtractJSON(response)
	if err != nil {
		return nil, fmt.Errorf("step result: %w", err)
	}

	var result StepResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("step result is not valid JSON: %w", err)
	}
	if result.ResultSummary == "" {
		return nil, fmt.Errorf("step result missing resultSummary")
	}
	return &result, nil
}
