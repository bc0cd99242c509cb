// Package metadata produces LLM-generated section summaries that enrich node
// routing texts.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum section length before truncation (in tokens).
const DefaultMaxTokens = 4000

// NodeSummary is the structured response for one section.
type NodeSummary struct {
	Summary string `json:"summary"`
}

// Summarizer produces one-sentence section summaries using GPT-4o-mini.
// Summaries are optional: indexing proceeds without them when no summarizer
// is configured or a request fails.
type Summarizer struct {
	client    *openai.Client
	maxTokens int
}

// NewSummarizer creates a section summarizer with the given OpenAI client.
// Optional maxTokens parameter sets the truncation limit (defaults to
// DefaultMaxTokens).
func NewSummarizer(client *openai.Client, maxTokens ...int) *Summarizer {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	return &Summarizer{
		client:    client,
		maxTokens: max,
	}
}

// SummarizeSection produces a one-sentence summary of a section's body text.
// The section path gives the model hierarchy context.
func (s *Summarizer) SummarizeSection(ctx context.Context, path, body string) (string, error) {
	truncated := s.truncateContent(body)

	prompt := fmt.Sprintf(`Summarize this document section in one sentence. The summary is used to
route search queries to the right section, so name the concrete topics the
section covers rather than describing it abstractly.

Section: %s

Section text:
%s

Respond in JSON format:
{"summary": "One sentence naming what this section covers"}`, path, truncated)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModelGPT4oMini,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	var summary NodeSummary
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &summary); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return summary.Summary, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (s *Summarizer) truncateContent(content string) string {
	maxChars := s.maxTokens * 4

	if len(content) <= maxChars {
		return content
	}

	log.Printf("Warning: Truncating section from %d to %d characters (estimated %d tokens)",
		len(content), maxChars, s.maxTokens)

	return content[:maxChars]
}
