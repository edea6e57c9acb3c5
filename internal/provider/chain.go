package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ChatMiddleware intercepts LLM requests and/or responses.
type ChatMiddleware interface {
	// Name returns a short identifier for logging.
	Name() string
	// ProcessRequest is called before the LLM call. It may modify the
	// request or return an error to abort.
	ProcessRequest(ctx context.Context, req *ChatRequest, meta *RequestMeta) error
	// ProcessResponse is called after the LLM call. It may modify the
	// response or return an error to suppress delivery.
	ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, meta *RequestMeta) error
}

// RequestMeta carries mutable context through the chain.
type RequestMeta struct {
	Identity  string
	Channel   string
	SessionID string
	ModelName string
	StartedAt time.Time
}

// Chain holds an ordered list of middleware around a provider. It runs
// pre-hooks in order, calls the provider, then runs post-hooks in order.
type Chain struct {
	Middlewares []ChatMiddleware
	Provider    LLMProvider
}

// NewChain creates a chain with the given provider and no middleware.
func NewChain(prov LLMProvider) *Chain {
	return &Chain{Provider: prov}
}

// Use appends middleware to the chain.
func (c *Chain) Use(mw ...ChatMiddleware) {
	c.Middlewares = append(c.Middlewares, mw...)
}

// DefaultModel exposes the wrapped provider's default model, letting a
// Chain stand in wherever an LLMProvider is expected.
func (c *Chain) DefaultModel() string {
	return c.Provider.DefaultModel()
}

// Chat runs pre-hooks, the wrapped provider, then post-hooks.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.Process(ctx, req, nil)
}

// Process is Chat with explicit request metadata.
func (c *Chain) Process(ctx context.Context, req *ChatRequest, meta *RequestMeta) (*ChatResponse, error) {
	if meta == nil {
		meta = &RequestMeta{}
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}

	for _, mw := range c.Middlewares {
		if err := mw.ProcessRequest(ctx, req, meta); err != nil {
			return nil, fmt.Errorf("middleware %s pre-hook: %w", mw.Name(), err)
		}
	}

	resp, err := c.Provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, mw := range c.Middlewares {
		if err := mw.ProcessResponse(ctx, req, resp, meta); err != nil {
			return nil, fmt.Errorf("middleware %s post-hook: %w", mw.Name(), err)
		}
	}
	return resp, nil
}

var _ LLMProvider = (*Chain)(nil)

// UsageLogger logs token usage and latency for every completed call.
type UsageLogger struct{}

func (UsageLogger) Name() string { return "usage" }

func (UsageLogger) ProcessRequest(_ context.Context, _ *ChatRequest, _ *RequestMeta) error {
	return nil
}

func (UsageLogger) ProcessResponse(_ context.Context, _ *ChatRequest, resp *ChatResponse, meta *RequestMeta) error {
	slog.Info("model call completed",
		"identity", meta.Identity,
		"session", meta.SessionID,
		"model", meta.ModelName,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"tool_calls", len(resp.ToolCalls),
		"duration", time.Since(meta.StartedAt).Round(time.Millisecond),
	)
	return nil
}
