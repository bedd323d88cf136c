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

package llms

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced json block",
			input: "Here is the plan:\n```json\n{\"planName\": \"x\"}\n```\nLet me know.",
			want:  `{"planName": "x"}`,
		},
		{
			name:  "fenced json block preferred over plain fence",
			input: "```\nnot this\n```\n```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "plain fenced block",
			input: "Result:\n```\n{\"resultSummary\": \"done\"}\n```",
			want:  `{"resultSummary": "done"}`,
		},
		{
			name:  "bare braces with trailing prose",
			input: `Sure! {"todoUpdate": {"done": true}} Hope that helps.`,
			want:  `{"todoUpdate": {"done": true}}`,
		},
		{
			name:  "nested braces resolve to outermost pair",
			input: `prefix {"a": {"b": {"c": 1}}} suffix`,
			want:  `{"a": {"b": {"c": 1}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoPayload(t *testing.T) {
	for _, input := range []string{
		"",
		"I could not produce a plan, sorry.",
		"``` ```",
	} {
		_, err := ExtractJSON(input)
		require.Error(t, err, "input: %q", input)

		var extractionErr *ExtractionError
		assert.True(t, errors.As(err, &extractionErr))
	}
}
