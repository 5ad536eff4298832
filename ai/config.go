// Copyright 2025 Poiesic Systems
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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for summarization providers.
type Config struct {
	// Host is the base URL of an OpenAI-compatible API.
	// Example: "http://localhost:11434/v1"
	Host string

	// Model is the chat model used for summaries.
	// Example: "qwen2.5:3b", "gpt-4o-mini", "gemini-1.5-pro"
	Model string

	// Token is the API credential. Local servers accept any value.
	Token string

	// Project and Location select the Vertex AI endpoint.
	Project  string
	Location string

	// Timeout bounds a single summarization call.
	Timeout time.Duration

	// MaxInputChars truncates document text before it is sent to the model.
	MaxInputChars int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithVertex sets the Google Cloud project and region.
func WithVertex(project, location string) ConfigOption {
	return func(c *Config) {
		c.Project = project
		c.Location = location
	}
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithMaxInputChars(n int) ConfigOption {
	return func(c *Config) {
		c.MaxInputChars = n
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
func DefaultConfig() *Config {
	return &Config{
		Host:          "http://localhost:11434/v1",
		Model:         "qwen2.5:3b",
		Location:      "us-central1",
		Timeout:       60 * time.Second,
		MaxInputChars: 24000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithModel("gpt-4o-mini"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize adds the /v1 suffix to Host if missing, which OpenAI-compatible
// servers (Ollama, LocalAI, vLLM) expect.
func (c *Config) Normalize() {
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/") + "/v1"
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultConfig().MaxInputChars
	}
}

// Validate checks that the configuration is usable by an OpenAI-compatible
// provider. It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Timeout < 0 {
		return errors.New("ai config: Timeout must not be negative")
	}
	return nil
}

// ValidateVertex checks the settings used by the Vertex AI provider.
func (c *Config) ValidateVertex() error {
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultConfig().MaxInputChars
	}
	if c.Project == "" || c.Location == "" {
		return errors.New("ai config: Project and Location are required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	return nil
}
