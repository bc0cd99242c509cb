package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// TestParseSummaryResponse verifies JSON parsing of a valid response.
func TestParseSummaryResponse(t *testing.T) {
	jsonResponse := `{"summary": "Covers installation prerequisites and setup."}`

	var summary NodeSummary
	err := json.Unmarshal([]byte(jsonResponse), &summary)
	if err != nil {
		t.Fatalf("Failed to parse valid JSON response: %v", err)
	}

	if summary.Summary != "Covers installation prerequisites and setup." {
		t.Errorf("Unexpected summary: %q", summary.Summary)
	}
}

// TestSummarizeSection_NoChoices verifies a completion with an empty choices
// array surfaces as an error instead of panicking.
func TestSummarizeSection_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","created":0,"model":"gpt-4o-mini","choices":[]}`)
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	s := NewSummarizer(&client)

	_, err := s.SummarizeSection(context.Background(), "Guide > Setup", "Some section body.")
	if err == nil {
		t.Fatal("Expected an error for a response with no choices")
	}
	if !strings.Contains(err.Error(), "no choices") {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestTruncateContent verifies truncation for very long sections.
func TestTruncateContent(t *testing.T) {
	s := &Summarizer{
		maxTokens: DefaultMaxTokens,
	}

	longContent := strings.Repeat("This is a test content. ", 4000) // ~100k chars

	truncated := s.truncateContent(longContent)

	expectedMaxChars := DefaultMaxTokens * 4
	if len(truncated) != expectedMaxChars {
		t.Errorf("Expected truncated length %d, got %d", expectedMaxChars, len(truncated))
	}

	if !strings.HasPrefix(longContent, truncated) {
		t.Error("Truncated content should be a prefix of original content")
	}
}

// TestTruncateContent_Short verifies short content passes through unchanged.
func TestTruncateContent_Short(t *testing.T) {
	s := &Summarizer{
		maxTokens: DefaultMaxTokens,
	}

	shortContent := strings.Repeat("Short. ", 140)

	truncated := s.truncateContent(shortContent)

	if truncated != shortContent {
		t.Error("Short content should not be truncated")
	}
}

// TestTruncateContent_CustomMaxTokens verifies a custom limit is honored.
func TestTruncateContent_CustomMaxTokens(t *testing.T) {
	s := &Summarizer{
		maxTokens: 1000,
	}

	content := strings.Repeat("Content. ", 1000) // ~9000 chars

	truncated := s.truncateContent(content)

	if len(truncated) != 1000*4 {
		t.Errorf("Expected truncated length %d, got %d", 1000*4, len(truncated))
	}
}
