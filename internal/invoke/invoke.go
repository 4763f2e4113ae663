// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package invoke submits prompts to a generative model and returns its raw
// textual reply. Every failure is reported as a *types.InvocationError so the
// retry policy can treat transport, authentication and rate-limit problems
// alike.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/internal/prompt"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Invoker sends one prompt to a model.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)

	// Name identifies the backend and model, e.g. "gemini:gemini-2.0-flash".
	Name() string
}

// New returns the invoker for cfg.Backend. A missing API key is a
// ConfigurationError.
func New(ctx context.Context, cfg types.ModelConfig, client *http.Client) (Invoker, error) {
	switch cfg.Backend {
	case types.BackendGemini, "":
		return NewGemini(ctx, cfg, client)
	case types.BackendClaude:
		return NewClaude(cfg, client)
	default:
		return nil, &types.ConfigurationError{Field: "model.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// withTimeout bounds a single call when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// invocationError wraps cause unless it is a context error of the caller,
// which must stay visible as cancellation.
func invocationError(ctx context.Context, backend string, status int, cause error) error {
	if ctx.Err() != nil && errors.Is(cause, ctx.Err()) {
		return ctx.Err()
	}
	return &types.InvocationError{Backend: backend, StatusCode: status, Cause: cause}
}

// Cache stores model replies by prompt hash and model name.
type Cache interface {
	CachedResponse(ctx context.Context, promptHash, model string) (string, bool, error)
	StoreResponse(ctx context.Context, promptHash, model, response string) error
}

// Refresher is an Invoker that answers from a reply cache. The pipeline
// calls Refresh instead of Invoke after a rejected reply, and Accept once a
// reply has passed validation.
type Refresher interface {
	Invoker
	Refresh(ctx context.Context, prompt string) (string, error)
	Accept(ctx context.Context, prompt, reply string)
}

// Cached returns an Invoker that answers repeated prompts from cache. Replies
// are stored only through Accept, so a reply the caller rejects is never
// served again.
func Cached(next Invoker, cache Cache, logger *zap.Logger) *CachedInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedInvoker{next: next, cache: cache, logger: logger}
}

// CachedInvoker is the Refresher returned by Cached.
type CachedInvoker struct {
	next   Invoker
	cache  Cache
	logger *zap.Logger
}

func (c *CachedInvoker) Name() string { return c.next.Name() }

// Invoke returns the cached reply to text, calling through on a miss.
func (c *CachedInvoker) Invoke(ctx context.Context, text string) (string, error) {
	hash := prompt.Hash(text)
	model := c.next.Name()

	reply, ok, err := c.cache.CachedResponse(ctx, hash, model)
	switch {
	case err != nil:
		c.logger.Warn("response cache lookup failed", zap.String("prompt_hash", hash), zap.Error(err))
	case ok:
		c.logger.Debug("response cache hit", zap.String("prompt_hash", hash), zap.String("model", model))
		return reply, nil
	}
	return c.next.Invoke(ctx, text)
}

// Refresh calls the model without consulting the cache.
func (c *CachedInvoker) Refresh(ctx context.Context, text string) (string, error) {
	return c.next.Invoke(ctx, text)
}

// Accept stores reply as the answer to text. Store failures are logged.
func (c *CachedInvoker) Accept(ctx context.Context, text, reply string) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	hash := prompt.Hash(text)
	if err := c.cache.StoreResponse(ctx, hash, c.next.Name(), reply); err != nil {
		c.logger.Warn("storing response failed", zap.String("prompt_hash", hash), zap.Error(err))
	}
}
