// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package invoke

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// geminiBaseURL overrides the Gemini API endpoint when non-empty. Package-level
// var for test substitution.
var geminiBaseURL = ""

// GeminiInvoker calls a Gemini model through google.golang.org/genai with
// temperature 0.
type GeminiInvoker struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewGemini creates a Gemini client for cfg.Model.
func NewGemini(ctx context.Context, cfg types.ModelConfig, httpClient *http.Client) (*GeminiInvoker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &types.ConfigurationError{Field: "model.api_key", Reason: "a Gemini API key is required"}
	}
	if cfg.Model == "" {
		return nil, &types.ConfigurationError{Field: "model.model", Reason: "model name is required"}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if geminiBaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: geminiBaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "model", Reason: "creating Gemini client", Cause: err}
	}
	return &GeminiInvoker{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}, nil
}

// Name returns "gemini:<model>".
func (g *GeminiInvoker) Name() string { return "gemini:" + g.model }

// Invoke sends prompt as a single user turn and returns the reply text.
func (g *GeminiInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", invocationError(ctx, "gemini", apiStatus(err), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", invocationError(ctx, "gemini", 0, errors.New("model returned an empty reply"))
	}
	return text, nil
}

// apiStatus returns the HTTP status of a genai.APIError in err's chain, or 0.
func apiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code
	}
	return 0
}
