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
	// OpenAIDefaultModel is used when no model is configured
	OpenAIDefaultModel = "gpt-4o-mini"
	// OpenAIBaseURL is the public OpenAI API endpoint
	OpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIConfig configures the OpenAI engine
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// RequestsPerSecond throttles outgoing calls; zero means unlimited
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// OpenAI implements Engine using the chat completions API
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAI creates a new OpenAI engine
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if IsPlaceholderKey(cfg.APIKey) {
		return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &OpenAI{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		limiter: newLimiter(cfg.RequestsPerSecond),
	}, nil
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat openAIFormat    `json:"response_format"`
	Temperature    float64         `json:"temperature"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string          `json:"role"`
	Content []openAIContent `json:"content"`
}

type openAIContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Available() bool { return o != nil && !IsPlaceholderKey(o.apiKey) }

// Extract sends the document to OpenAI and maps the JSON reply
func (o *OpenAI) Extract(ctx context.Context, req Request) Result {
	return extract(ctx, o.Name(), o.limiter, req, o.complete)
}

func (o *OpenAI) complete(ctx context.Context, p page, prompt string) (string, []byte, error) {
	body := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContent{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: p.dataURL()}},
				},
			},
		},
		ResponseFormat: openAIFormat{Type: "json_object"},
	}

	raw, err := postJSON(ctx, o.client, o.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}, body)
	if err != nil {
		return "", raw, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", raw, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", raw, fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, raw, nil
}
