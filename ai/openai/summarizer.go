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

package openai

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/retry"
)

// Summarizer implements ai.Summarizer using OpenAI-compatible chat APIs.
type Summarizer struct {
	client   llms.Model
	maxChars int
	policy   retry.Policy
	logger   *slog.Logger
}

// newSummarizer is an internal constructor that returns the concrete type.
func newSummarizer(config *ai.Config) (*Summarizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token.
	token := config.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	if config.Timeout > 0 {
		policy.AttemptTimeout = config.Timeout
	}
	return &Summarizer{
		client:   client,
		maxChars: config.MaxInputChars,
		policy:   policy,
		logger:   slog.Default().With("component", "openai-summarizer"),
	}, nil
}

// NewSummarizer creates a summarizer using the provided configuration.
//
// Returns ai.Summarizer interface to enforce abstraction.
func NewSummarizer(config *ai.Config) (ai.Summarizer, error) {
	return newSummarizer(config)
}

// Summarize asks the model for a JSON summary. Malformed answers are retried
// up to ai.MaxParseAttempts times; call failures follow the retry policy.
func (s *Summarizer) Summarize(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ai.SystemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, ai.UserPrompt(req, s.maxChars)),
	}

	var lastErr error
	for attempt := 1; attempt <= ai.MaxParseAttempts; attempt++ {
		var answer string
		err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			response, err := s.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
			if err != nil {
				return ai.ClassifyError(ctx, err)
			}
			if len(response.Choices) > 0 {
				answer = response.Choices[0].Content
			}
			return nil
		})
		if err != nil {
			s.logger.Error("failed to generate summary", "file", req.FileName, "err", err)
			return nil, err
		}

		summary, err := ai.ParseSummary(answer)
		if err != nil {
			lastErr = err
			s.logger.Warn("error parsing summary response", "attempt", attempt, "file", req.FileName, "err", err)
			continue
		}

		s.logger.Debug("summarized document",
			"file", req.FileName,
			"entities", len(summary.Entities),
			"citations", len(summary.Citations))
		return ai.Finalize(summary, req.Text), nil
	}

	s.logger.Error("failed to parse summary response after retries", "file", req.FileName, "err", lastErr)
	return nil, lastErr
}
