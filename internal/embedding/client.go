package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client shared by embedding generation and node
// summarization.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client. It reads OPENAI_API_KEY from the
// environment and returns an error if not set. OPENAI_BASE_URL optionally
// points the client at a compatible provider.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	var opts []option.RequestOption
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	// openai-go reads OPENAI_API_KEY from the environment itself
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages.
func (c *Client) Client() *openai.Client {
	return c.client
}
