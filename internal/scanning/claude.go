package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// ClaudeDefaultModel is used when no model is configured
	ClaudeDefaultModel = "claude-sonnet-4-20250514"
	// ClaudeBaseURL is the Anthropic API endpoint
	ClaudeBaseURL = "https://api.anthropic.com/v1"
	// ClaudeAPIVersion is the required anthropic-version header
	ClaudeAPIVersion = "2023-06-01"

	claudeMaxTokens = 1024
)

// ClaudeConfig configures the Claude engine
type ClaudeConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Claude implements Engine using the Anthropic Messages API
type Claude struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClaude creates a new Claude engine
func NewClaude(cfg ClaudeConfig) (*Claude, error) {
	if IsPlaceholderKey(cfg.APIKey) {
		return nil, fmt.Errorf("claude: %w", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = ClaudeDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ClaudeBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Claude{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		limiter: newLimiter(cfg.RequestsPerSecond),
	}, nil
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Available() bool { return c != nil && !IsPlaceholderKey(c.apiKey) }

// Extract sends the document to Claude and maps the JSON reply
func (c *Claude) Extract(ctx context.Context, req Request) Result {
	return extract(ctx, c.Name(), c.limiter, req, c.messages)
}

func (c *Claude) messages(ctx context.Context, p page, prompt string) (string, []byte, error) {
	body := claudeRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		Messages: []claudeMessage{
			{
				Role: "user",
				Content: []claudeBlock{
					{Type: "image", Source: &claudeSource{Type: "base64", MediaType: p.mediaType, Data: p.base64()}},
					{Type: "text", Text: prompt},
				},
			},
		},
	}

	raw, err := postJSON(ctx, c.client, c.baseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": ClaudeAPIVersion,
	}, body)
	if err != nil {
		return "", raw, err
	}

	var resp claudeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", raw, fmt.Errorf("unmarshaling response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", raw, fmt.Errorf("no response from claude")
	}
	return text.String(), raw, nil
}
