package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiDefaultModel is used when no model is configured
const GeminiDefaultModel = "gemini-2.5-pro"

// GeminiConfig configures the Gemini engine
type GeminiConfig struct {
	APIKey            string
	Model             string
	RequestsPerSecond float64
}

// Gemini implements Engine using Google Gemini
type Gemini struct {
	apiKey  string
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
}

// NewGemini creates a new Gemini engine
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if IsPlaceholderKey(cfg.APIKey) {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = GeminiDefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"

	return &Gemini{
		apiKey:  cfg.APIKey,
		client:  client,
		model:   model,
		limiter: newLimiter(cfg.RequestsPerSecond),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Available() bool { return g != nil && g.client != nil && !IsPlaceholderKey(g.apiKey) }

// Extract sends the document to Gemini and maps the JSON reply
func (g *Gemini) Extract(ctx context.Context, req Request) Result {
	return extract(ctx, g.Name(), g.limiter, req, g.generate)
}

func (g *Gemini) generate(ctx context.Context, p page, prompt string) (string, []byte, error) {
	// genai.ImageData expects the format suffix ("png"), not the full MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", p.data),
		genai.Text(prompt),
	)
	if err != nil {
		return "", nil, classifyGemini(err)
	}

	raw, _ := json.Marshal(resp)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", raw, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), raw, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyGemini maps googleapi errors onto APIError so retry classification is shared
func classifyGemini(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{StatusCode: gErr.Code, Body: gErr.Message}
	}
	return fmt.Errorf("generating content: %w", err)
}
