package provider

import (
	"context"
	"log/slog"
	"time"
)

const defaultBackoffBase = 500 * time.Millisecond

// RetryClient wraps a provider with bounded retries and an optional
// fallback. Retryable failures back off exponentially; once the primary
// is exhausted the request is replayed against the fallback with its own
// default model. Terminal errors surface immediately.
type RetryClient struct {
	primary     LLMProvider
	fallback    LLMProvider
	maxRetries  int
	backoffBase time.Duration
}

// NewRetryClient wraps primary. fallback may be nil.
func NewRetryClient(primary, fallback LLMProvider, maxRetries int) *RetryClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryClient{
		primary:     primary,
		fallback:    fallback,
		maxRetries:  maxRetries,
		backoffBase: defaultBackoffBase,
	}
}

// DefaultModel returns the primary provider's default model.
func (r *RetryClient) DefaultModel() string {
	return r.primary.DefaultModel()
}

// Chat tries the primary provider up to maxRetries+1 times, then the
// fallback once.
func (r *RetryClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Warn("retrying model call", "attempt", attempt, "backoff", backoff, "error", lastErr)
		}
		resp, err := r.primary.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	if r.fallback != nil {
		slog.Warn("primary model exhausted, falling back", "fallback_model", r.fallback.DefaultModel(), "error", lastErr)
		fbReq := *req
		fbReq.Model = ""
		resp, err := r.fallback.Chat(ctx, &fbReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
