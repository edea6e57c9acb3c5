package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// scriptedProvider returns canned outcomes in order, then repeats the last.
type scriptedProvider struct {
	model    string
	outcomes []error
	calls    int
}

func (s *scriptedProvider) DefaultModel() string { return s.model }

func (s *scriptedProvider) Chat(_ context.Context, _ *ChatRequest) (*ChatResponse, error) {
	idx := s.calls
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	s.calls++
	if err := s.outcomes[idx]; err != nil {
		return nil, err
	}
	return &ChatResponse{Content: "ok from " + s.model}, nil
}

func fastRetryClient(primary, fallback LLMProvider, maxRetries int) *RetryClient {
	r := NewRetryClient(primary, fallback, maxRetries)
	r.backoffBase = time.Millisecond
	return r
}

func TestRetryClient_SucceedsAfterRetryableError(t *testing.T) {
	primary := &scriptedProvider{model: "m1", outcomes: []error{
		&APIError{Status: http.StatusTooManyRequests},
		nil,
	}}
	r := fastRetryClient(primary, nil, 3)

	resp, err := r.Chat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok from m1" {
		t.Errorf("unexpected response: %q", resp.Content)
	}
	if primary.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", primary.calls)
	}
}

func TestRetryClient_TerminalErrorSurfacesImmediately(t *testing.T) {
	terminal := &APIError{Status: http.StatusBadRequest}
	primary := &scriptedProvider{model: "m1", outcomes: []error{terminal}}
	fallback := &scriptedProvider{model: "m2", outcomes: []error{nil}}
	r := fastRetryClient(primary, fallback, 3)

	_, err := r.Chat(context.Background(), &ChatRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected terminal 400, got %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("terminal error must not retry, got %d attempts", primary.calls)
	}
	if fallback.calls != 0 {
		t.Errorf("terminal error must not fall back, got %d calls", fallback.calls)
	}
}

func TestRetryClient_FallsBackAfterExhaustion(t *testing.T) {
	primary := &scriptedProvider{model: "m1", outcomes: []error{
		&APIError{Status: http.StatusBadGateway},
	}}
	fallback := &scriptedProvider{model: "m2", outcomes: []error{nil}}
	r := fastRetryClient(primary, fallback, 2)

	resp, err := r.Chat(context.Background(), &ChatRequest{Model: "m1"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok from m2" {
		t.Errorf("expected fallback response, got %q", resp.Content)
	}
	if primary.calls != 3 {
		t.Errorf("expected 3 primary attempts, got %d", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("expected 1 fallback call, got %d", fallback.calls)
	}
}

func TestRetryClient_NoFallbackReturnsLastError(t *testing.T) {
	primary := &scriptedProvider{model: "m1", outcomes: []error{
		&APIError{Status: http.StatusServiceUnavailable},
	}}
	r := fastRetryClient(primary, nil, 1)

	_, err := r.Chat(context.Background(), &ChatRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected last retryable error, got %v", err)
	}
}

func TestRetryClient_ContextCancelStopsRetries(t *testing.T) {
	primary := &scriptedProvider{model: "m1", outcomes: []error{
		&APIError{Status: http.StatusBadGateway},
	}}
	r := NewRetryClient(primary, nil, 5)
	r.backoffBase = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Chat(ctx, &ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if primary.calls > 2 {
		t.Errorf("expected retries to stop on cancel, got %d attempts", primary.calls)
	}
}
