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

// Package config loads and validates Planor configuration.
//
// Configuration is YAML with ${VAR} environment expansion. A .env file in
// the working directory is loaded before expansion, so API keys never need
// to live in the config file itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root Planor configuration.
type Config struct {
	// LLM configures the completion-service provider.
	LLM LLMConfig `yaml:"llm"`

	// Checkpoints configures durable progress snapshots.
	Checkpoints CheckpointConfig `yaml:"checkpoints"`

	// Rules is text injected verbatim into every generation and
	// execution prompt.
	Rules RulesConfig `yaml:"rules"`

	// Session identifies the orchestration session.
	Session SessionConfig `yaml:"session"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// CheckpointConfig configures checkpoint persistence.
type CheckpointConfig struct {
	// Store is "sqlite" or "memory".
	Store string `yaml:"store"`

	// Path is the SQLite database file (sqlite store only).
	Path string `yaml:"path"`
}

// RulesConfig supplies the rules text block.
type RulesConfig struct {
	// Text is inline rules text.
	Text string `yaml:"text"`

	// File points at a rules file. Takes precedence over Text when set
	// and can be watched for live reload.
	File string `yaml:"file"`
}

// SessionConfig identifies the session owner.
type SessionConfig struct {
	AppName string `yaml:"app_name"`
	UserID  string `yaml:"user_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "simple" or "verbose".
	Format string `yaml:"format"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()

	if c.Checkpoints.Store == "" {
		c.Checkpoints.Store = "memory"
	}
	if c.Checkpoints.Store == "sqlite" && c.Checkpoints.Path == "" {
		c.Checkpoints.Path = "planor.db"
	}
	if c.Session.AppName == "" {
		c.Session.AppName = "planor"
	}
	if c.Session.UserID == "" {
		c.Session.UserID = "default"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	switch c.Checkpoints.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown checkpoint store %q (want memory or sqlite)", c.Checkpoints.Store)
	}
	return nil
}

// RulesText resolves the configured rules block, preferring the rules file.
func (c *Config) RulesText() string {
	if c.Rules.File != "" {
		data, err := os.ReadFile(c.Rules.File)
		if err == nil {
			return string(data)
		}
	}
	return c.Rules.Text
}

// Load reads, expands and validates a configuration file. An empty path
// yields the default configuration.
func Load(path string) (*Config, error) {
	LoadEnvFiles()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
