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

// Package llms provides completion-service providers for plan generation
// and step execution.
//
// The orchestration core consumes whole responses, so providers are
// deliberately non-streaming: one prompt in, one text completion out.
// Transport and model errors propagate to the caller unchanged.
package llms

import (
	"context"
	"fmt"
)

// CompletionService is the outbound interface to a text-completion model.
type CompletionService interface {
	// Ask sends a prompt and returns the full text completion.
	Ask(ctx context.Context, prompt string) (string, error)

	// Model returns the configured model identifier.
	Model() string

	// Close releases provider resources.
	Close() error
}

// ProviderError reports a completion-service failure.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
