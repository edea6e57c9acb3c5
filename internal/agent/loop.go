// Package agent implements the core agent loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/store"
	"github.com/goclaw/goclaw/internal/tools"
)

// FallbackApology is sent whenever a turn cannot produce real model text. A
// turn must never end silently.
const FallbackApology = "Sorry, I couldn't finish working on that. Please try again, or break the request into smaller steps."

const toolCallPlaceholder = "(requesting tools)"

const (
	defaultMaxIterations = 10
	defaultToolTimeout   = 120 * time.Second
	defaultMaxTokens     = 4096
)

// SessionStore is the slice of the store the loop needs.
// Implemented by store.Store.
type SessionStore interface {
	UpsertSession(sess *store.Session) error
	GetSessionByKey(key string) (*store.Session, error)
	AppendMessage(m *store.Message) error
	RecentMessages(sessionID string, limit int) ([]*store.Message, error)
	ListMemory(identity string, limit int) ([]*store.MemoryEntry, error)
}

// LoopOptions contains configuration for the agent loop.
type LoopOptions struct {
	Provider       provider.LLMProvider
	Store          SessionStore
	Registry       *tools.Registry
	Model          string
	MaxIterations  int
	ToolTimeout    time.Duration
	HistoryWindow  int
	TokenBudget    int
	MaxTokens      int
	Temperature    float64
	WorkspaceRoot  string
	Sandboxed      bool
	SystemTemplate string
}

// Loop is the core agent processing engine. One Process call handles one
// conversational turn; concurrent calls for different messages are safe
// because all turn state is local to the call.
type Loop struct {
	provider      provider.LLMProvider
	store         SessionStore
	registry      *tools.Registry
	builder       *ContextBuilder
	model         string
	maxIterations int
	toolTimeout   time.Duration
	maxTokens     int
	temperature   float64
	workspaceRoot string
	sandboxed     bool
}

// NewLoop creates a new agent loop.
func NewLoop(opts LoopOptions) *Loop {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	toolTimeout := opts.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = defaultToolTimeout
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}

	return &Loop{
		provider:      opts.Provider,
		store:         opts.Store,
		registry:      registry,
		builder:       NewContextBuilder(opts.Store, registry, opts.SystemTemplate, opts.HistoryWindow, opts.TokenBudget),
		model:         opts.Model,
		maxIterations: maxIter,
		toolTimeout:   toolTimeout,
		maxTokens:     maxTokens,
		temperature:   opts.Temperature,
		workspaceRoot: opts.WorkspaceRoot,
		sandboxed:     opts.Sandboxed,
	}
}

// Registry returns the loop's tool registry so callers can register tools.
func (l *Loop) Registry() *tools.Registry { return l.registry }

// Process handles one inbound message through the tool-calling loop and
// returns the assistant's reply. On a nil error the reply is never empty;
// callers translate errors into a user-facing apology.
func (l *Loop) Process(ctx context.Context, msg *bus.InboundMessage) (string, error) {
	start := time.Now()

	sess, err := l.resolveSession(msg)
	if err != nil {
		return "", err
	}

	if err := l.store.AppendMessage(&store.Message{
		SessionID: sess.ID,
		Role:      "user",
		Content:   msg.Text,
	}); err != nil {
		return "", fmt.Errorf("persist inbound message: %w", err)
	}

	workspace, err := l.sessionWorkspace(sess)
	if err != nil {
		return "", err
	}

	history, err := l.store.RecentMessages(sess.ID, l.builder.HistoryWindow())
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	messages := l.builder.BuildMessages(msg.From, workspace, history, sess.SystemPrompt)

	model := sess.Model
	if model == "" {
		model = l.model
	}

	ctx = tools.WithCallContext(ctx, tools.CallContext{
		Identity:  msg.From,
		Channel:   msg.Channel,
		SessionID: sess.ID,
		Sandboxed: l.sandboxed,
		Workspace: workspace,
	})

	reply, err := l.runToolLoop(ctx, model, messages)
	if err != nil {
		return "", err
	}

	if err := l.store.AppendMessage(&store.Message{
		SessionID: sess.ID,
		Role:      "assistant",
		Content:   reply,
	}); err != nil {
		slog.Warn("failed to persist assistant message", "session", sess.Key, "error", err)
	}

	slog.Info("turn complete",
		"session", sess.Key,
		"channel", msg.Channel,
		"model", model,
		"duration_ms", time.Since(start).Milliseconds())
	return reply, nil
}

// resolveSession loads the session for the message's conversation or creates
// it, updating last-active either way.
func (l *Loop) resolveSession(msg *bus.InboundMessage) (*store.Session, error) {
	key := msg.SessionKey()
	sess, err := l.store.GetSessionByKey(key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = &store.Session{
			ID:       uuid.NewString(),
			Key:      key,
			Identity: msg.From,
			Channel:  msg.Channel,
			Model:    l.model,
		}
		slog.Info("session created", "session", key, "channel", msg.Channel)
	}
	sess.LastActiveAt = time.Now().UTC()
	if err := l.store.UpsertSession(sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

var workspaceNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sessionWorkspace ensures the session's workspace directory exists and
// returns its absolute path. The directory survives across turns so tools
// can build on earlier results.
func (l *Loop) sessionWorkspace(sess *store.Session) (string, error) {
	root := l.workspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	name := workspaceNameSanitizer.ReplaceAllString(sess.Key, "_")
	dir := filepath.Join(root, "sessions", name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session workspace: %w", err)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return dir, nil
}

func (l *Loop) runToolLoop(ctx context.Context, model string, messages []provider.Message) (string, error) {
	toolDefs := l.buildToolDefinitions()

	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       model,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) == "" {
				return FallbackApology, nil
			}
			return resp.Content, nil
		}

		assistantText := resp.Content
		if strings.TrimSpace(assistantText) == "" {
			assistantText = toolCallPlaceholder
		}
		messages = append(messages, provider.Message{Role: "assistant", Content: assistantText})

		// Tool calls within a round run sequentially; each gets its own
		// timeout so one hung tool cannot stall the turn forever. All
		// results come back to the model as one synthetic user turn.
		var results strings.Builder
		for _, tc := range resp.ToolCalls {
			result := l.executeToolCall(ctx, tc)
			if results.Len() > 0 {
				results.WriteString("\n\n")
			}
			results.WriteString(fmt.Sprintf("Tool %s result:\n%s", tc.Name, result))
			slog.Debug("tool executed", "tool", tc.Name, "result_length", len(result), "iteration", i)
		}
		messages = append(messages, provider.Message{Role: "user", Content: results.String()})
	}

	slog.Warn("iteration cap reached without final answer", "max_iterations", l.maxIterations)
	return FallbackApology, nil
}

// executeToolCall races one tool invocation against the per-call timeout.
// Every failure mode becomes a textual result the model can react to.
func (l *Loop) executeToolCall(ctx context.Context, tc provider.ToolCall) string {
	tool, ok := l.registry.Get(tc.Name)
	if !ok {
		return fmt.Sprintf("Error: tool not found: %s", tc.Name)
	}

	tctx, cancel := context.WithTimeout(ctx, l.toolTimeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{result: fmt.Sprintf("Error: tool %s panicked: %v", tc.Name, r)}
			}
		}()
		result, err := tool.Execute(tctx, tc.Arguments)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return fmt.Sprintf("Error: %v", out.err)
		}
		return out.result
	case <-tctx.Done():
		slog.Warn("tool call timed out", "tool", tc.Name, "timeout", l.toolTimeout, "tier", tools.ToolTier(tool))
		return fmt.Sprintf("Error: tool %s timed out after %v", tc.Name, l.toolTimeout)
	}
}

func (l *Loop) buildToolDefinitions() []provider.ToolDefinition {
	toolList := l.registry.List()
	defs := make([]provider.ToolDefinition, len(toolList))

	for i, tool := range toolList {
		defs[i] = provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		}
	}
	return defs
}
