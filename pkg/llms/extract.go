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
	"regexp"
	"strings"
)

// ExtractionError reports that no JSON payload could be located in a
// completion-service response.
type ExtractionError struct {
	Message string
}

func (e *ExtractionError) Error() string {
	return e.Message
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*)?\\s*(.*?)```")
)

// ExtractJSON pulls the JSON payload out of a free-text completion response.
// Models are instructed to answer with a single JSON object but routinely
// wrap it in markdown fences or trailing prose, so extraction is tried in
// order of specificity:
//
//  1. a fenced ```json block
//  2. any fenced ``` block
//  3. the substring between the first "{" and the last "}"
func ExtractJSON(text string) (string, error) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if candidate := strings.TrimSpace(m[1]); candidate != "" {
			return candidate, nil
		}
	}

	if m := fencedAnyRe.FindStringSubmatch(text); m != nil {
		if candidate := strings.TrimSpace(m[1]); candidate != "" {
			return candidate, nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1]), nil
	}

	return "", &ExtractionError{Message: "no JSON payload found in response"}
}
