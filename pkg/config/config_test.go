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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, LLMProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, "memory", cfg.Checkpoints.Store)
	assert.Equal(t, "planor", cfg.Session.AppName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PLANOR_TEST_KEY", "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: openai
  model: gpt-4o
  api_key: ${PLANOR_TEST_KEY}
checkpoints:
  store: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "sqlite", cfg.Checkpoints.Store)
	assert.Equal(t, "planor.db", cfg.Checkpoints.Path)
}

func TestLoad_EnvDefaultValue(t *testing.T) {
	assert.Equal(t, "fallback", expandEnvVars("${PLANOR_UNSET_VAR:-fallback}"))
}

func TestLoad_UnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: bedrock
  model: whatever
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestLoad_UnknownCheckpointStore(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: anthropic
checkpoints:
  store: redis
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown checkpoint store")
}

func TestRulesText_FileOverridesInline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.md")
	require.NoError(t, os.WriteFile(path, []byte("file rules"), 0o644))

	cfg := &Config{Rules: RulesConfig{Text: "inline rules", File: path}}
	assert.Equal(t, "file rules", cfg.RulesText())

	cfg.Rules.File = ""
	assert.Equal(t, "inline rules", cfg.RulesText())
}
