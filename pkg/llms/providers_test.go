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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planor-ai/planor/pkg/config"
)

func TestAnthropicAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4-20250514", req.Model)
		assert.Len(t, req.Messages, 1)

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "part one "},
				{Type: "text", Text: "part two"},
			},
		})
	}))
	defer srv.Close()

	provider, err := NewAnthropicProvider(&config.LLMConfig{
		Provider:  config.LLMProviderAnthropic,
		Model:     "claude-sonnet-4-20250514",
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		MaxTokens: 1024,
		Timeout:   5,
	})
	require.NoError(t, err)

	text, err := provider.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
}

func TestAnthropicAsk_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(anthropicResponse{
			Error: &anthropicError{Type: "invalid_request_error", Message: "bad model"},
		})
	}))
	defer srv.Close()

	provider, err := NewAnthropicProvider(&config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5,
	})
	require.NoError(t, err)

	_, err = provider.Ask(context.Background(), "hello")
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "anthropic", providerErr.Provider)
	assert.Contains(t, providerErr.Message, "bad model")
}

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider(&config.LLMConfig{})
	require.Error(t, err)
}

func TestOpenAIAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: "the answer"}},
			},
		})
	}))
	defer srv.Close()

	provider, err := NewOpenAIProvider(&config.LLMConfig{
		Model:   "gpt-4o",
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5,
	})
	require.NoError(t, err)

	text, err := provider.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
}

func TestOpenAIAsk_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIResponse{})
	}))
	defer srv.Close()

	provider, err := NewOpenAIProvider(&config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5,
	})
	require.NoError(t, err)

	_, err = provider.Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOllamaAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaResponse{
			Model:    req.Model,
			Response: "local completion",
			Done:     true,
		})
	}))
	defer srv.Close()

	provider, err := NewOllamaProvider(&config.LLMConfig{
		Model:   "llama3.2",
		BaseURL: srv.URL,
		Timeout: 5,
	})
	require.NoError(t, err)

	text, err := provider.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "local completion", text)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		provider config.LLMProvider
		apiKey   string
		wantErr  bool
	}{
		{provider: config.LLMProviderAnthropic, apiKey: "k"},
		{provider: config.LLMProviderOpenAI, apiKey: "k"},
		{provider: config.LLMProviderOllama},
		{provider: "bedrock", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			svc, err := NewFromConfig(&config.LLMConfig{
				Provider: tt.provider,
				APIKey:   tt.apiKey,
				Model:    "m",
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "m", svc.Model())
		})
	}
}
