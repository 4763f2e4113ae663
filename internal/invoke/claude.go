// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

// ClaudeInvoker calls the Anthropic Messages API.
type ClaudeInvoker struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Client    *http.Client
}

// NewClaude returns a ClaudeInvoker for cfg.
func NewClaude(cfg types.ModelConfig, client *http.Client) (*ClaudeInvoker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &types.ConfigurationError{Field: "model.api_key", Reason: "an Anthropic API key is required"}
	}
	if cfg.Model == "" {
		return nil, &types.ConfigurationError{Field: "model.model", Reason: "model name is required"}
	}
	return &ClaudeInvoker{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
		Client:    client,
	}, nil
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Name returns "claude:<model>".
func (c *ClaudeInvoker) Name() string { return "claude:" + c.Model }

// Invoke sends prompt as a single user message and returns the concatenated
// text blocks of the reply.
func (c *ClaudeInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", invocationError(ctx, "claude", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", invocationError(ctx, "claude", resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", invocationError(ctx, "claude", resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}

	var b strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", invocationError(ctx, "claude", resp.StatusCode, errors.New("no text content in reply"))
	}
	return text, nil
}
