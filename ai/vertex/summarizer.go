// Package vertex implements ai.Summarizer with Gemini models on Vertex AI.
// Credentials come from Application Default Credentials.
package vertex

import (
	"context"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/retry"
)

// generator is the part of *genai.GenerativeModel the summarizer uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Summarizer calls a Gemini model configured for JSON output.
type Summarizer struct {
	client   *genai.Client
	model    generator
	maxChars int
	policy   retry.Policy
	logger   *slog.Logger
}

// NewSummarizer connects to Vertex AI. Close releases the client.
func NewSummarizer(ctx context.Context, config *ai.Config) (*Summarizer, error) {
	if err := config.ValidateVertex(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, config.Project, config.Location)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(config.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ai.SystemPrompt())},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	policy := retry.DefaultPolicy()
	if config.Timeout > 0 {
		policy.AttemptTimeout = config.Timeout
	}
	return &Summarizer{
		client:   client,
		model:    model,
		maxChars: config.MaxInputChars,
		policy:   policy,
		logger:   slog.Default().With("component", "vertex-summarizer"),
	}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error) {
	prompt := genai.Text(ai.UserPrompt(req, s.maxChars))

	var lastErr error
	for attempt := 1; attempt <= ai.MaxParseAttempts; attempt++ {
		var answer string
		err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			resp, err := s.model.GenerateContent(ctx, prompt)
			if err != nil {
				return ai.ClassifyError(ctx, err)
			}
			answer = responseText(resp)
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
		return ai.Finalize(summary, req.Text), nil
	}
	return nil, lastErr
}

// Close releases the Vertex AI client.
func (s *Summarizer) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
