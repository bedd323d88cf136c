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

package planner

import "strings"

// buildPlanPrompt assembles the single plan-generation prompt. The model is
// instructed to answer with one JSON object; trailing prose is tolerated by
// the extraction step.
func buildPlanPrompt(goal, rules string) string {
	var b strings.Builder

	b.WriteString("You are a planning assistant. Break the following goal into a concrete, ordered plan.\n\n")
	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\n")

	if rules != "" {
		b.WriteString("Rules:\n")
		b.WriteString(rules)
		b.WriteString("\n\n")
	}

	b.WriteString(`Respond with ONLY a JSON object in this exact shape:

{
  "planName": "short plan name",
  "description": "one-paragraph summary of the plan",
  "todos": [
    {
      "title": "short step name",
      "description": "what this step covers",
      "instructions": "precise instructions for carrying out the step",
      "expectedResult": "what a successful step produces",
      "priority": "high|medium|low",
      "estimatedTime": 30
    }
  ]
}

Every todo must have non-empty title, description, instructions and expectedResult.
estimatedTime is the estimate in minutes. Do not wrap the JSON in commentary.
`)

	return b.String()
}
