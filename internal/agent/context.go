package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/store"
	"github.com/goclaw/goclaw/internal/tools"
)

// Template tokens replaced when rendering the system prompt.
const (
	tokenTime          = "{time}"
	tokenDateReference = "{date_reference}"
	tokenWorkspace     = "{workspace}"
	tokenTools         = "{tools}"
	tokenMemory        = "{memory}"
)

const defaultSystemTemplate = `# GoClaw 🤖

You are GoClaw, a helpful, efficient AI assistant reachable over chat.
You have access to tools that allow you to:
- Read, write, and edit files in your workspace
- Execute shell commands in an isolated sandbox
- Remember and recall facts about the user
- Delegate complex objectives to parallel sub-agents

## Current Time
{time}

## Date Reference (use these — do not compute dates yourself)
{date_reference}

## Workspace
Your workspace is at: {workspace}
It is the only writable location. Paths in tool calls are relative to it.

## Tools
{tools}

## What you remember about this user
{memory}

IMPORTANT: Reply directly with text when a question needs no tools.
Always be helpful, accurate, and concise.`

const (
	memoryPromptEntries  = 20
	memoryValuePreview   = 120
	defaultHistoryWindow = 50
	charsPerToken        = 4
)

// MemoryReader is the slice of the store the context builder needs.
type MemoryReader interface {
	ListMemory(identity string, limit int) ([]*store.MemoryEntry, error)
}

// ContextBuilder renders the system prompt and assembles the model message
// list for one turn.
type ContextBuilder struct {
	memory        MemoryReader
	registry      *tools.Registry
	template      string
	historyWindow int
	tokenBudget   int
	now           func() time.Time
}

// NewContextBuilder creates a context builder. template may be empty to use
// the default; historyWindow and tokenBudget of zero disable their limits.
func NewContextBuilder(memory MemoryReader, registry *tools.Registry, template string, historyWindow, tokenBudget int) *ContextBuilder {
	if strings.TrimSpace(template) == "" {
		template = defaultSystemTemplate
	}
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &ContextBuilder{
		memory:        memory,
		registry:      registry,
		template:      template,
		historyWindow: historyWindow,
		tokenBudget:   tokenBudget,
		now:           time.Now,
	}
}

// HistoryWindow returns the number of persisted messages loaded per turn.
func (b *ContextBuilder) HistoryWindow() int { return b.historyWindow }

// BuildSystemPrompt renders the template with the current time, date
// reference, workspace, tool list, and the identity's memory summary.
func (b *ContextBuilder) BuildSystemPrompt(identity, workspace string) string {
	t := b.now()

	replacer := strings.NewReplacer(
		tokenTime, t.Format("2006-01-02 15:04 (Monday)"),
		tokenDateReference, buildDateReference(t),
		tokenWorkspace, workspace,
		tokenTools, b.buildToolSummary(),
		tokenMemory, b.buildMemorySummary(identity),
	)
	return replacer.Replace(b.template)
}

// buildDateReference pre-computes date references so the LLM never has to do
// date arithmetic.
func buildDateReference(t time.Time) string {
	yesterday := t.AddDate(0, 0, -1)
	tomorrow := t.AddDate(0, 0, 1)
	ref := fmt.Sprintf("- Yesterday: %s (%s)\n- Today: %s (%s)\n- Tomorrow: %s (%s)",
		yesterday.Format("2006-01-02"), yesterday.Format("Monday"),
		t.Format("2006-01-02"), t.Format("Monday"),
		tomorrow.Format("2006-01-02"), tomorrow.Format("Monday"))
	for i := 2; i <= 7; i++ {
		d := t.AddDate(0, 0, i)
		ref += fmt.Sprintf("\n- %s: %s", d.Format("Monday"), d.Format("2006-01-02"))
	}
	return ref
}

func (b *ContextBuilder) buildToolSummary() string {
	if b.registry == nil {
		return "(no tools registered)"
	}
	names := b.registry.Names()
	if len(names) == 0 {
		return "(no tools registered)"
	}
	var sb strings.Builder
	for _, name := range names {
		if tool, ok := b.registry.Get(name); ok {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description()))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *ContextBuilder) buildMemorySummary(identity string) string {
	if b.memory == nil || identity == "" {
		return "(nothing yet)"
	}
	entries, err := b.memory.ListMemory(identity, memoryPromptEntries)
	if err != nil || len(entries) == 0 {
		return "(nothing yet)"
	}
	var sb strings.Builder
	for _, e := range entries {
		val := e.Value
		if len(val) > memoryValuePreview {
			val = val[:memoryValuePreview] + "..."
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", e.Key, val))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildMessages assembles the model context: rendered system prompt plus the
// session's recent history (which already includes the just-persisted inbound
// message), trimmed to the token budget.
func (b *ContextBuilder) BuildMessages(identity, workspace string, history []*store.Message, systemOverride string) []provider.Message {
	systemPrompt := b.BuildSystemPrompt(identity, workspace)
	if strings.TrimSpace(systemOverride) != "" {
		systemPrompt = systemPrompt + "\n\n" + systemOverride
	}

	messages := make([]provider.Message, 0, len(history)+1)
	messages = append(messages, provider.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, provider.Message{Role: role, Content: m.Content})
	}

	return enforceTokenBudget(messages, b.tokenBudget)
}

// enforceTokenBudget estimates tokens with a fixed character ratio and drops
// the oldest non-system messages until under budget. The two most recent
// messages are never dropped, so the final user message always survives.
func enforceTokenBudget(messages []provider.Message, budget int) []provider.Message {
	if budget <= 0 {
		return messages
	}
	for estimateTokens(messages) > budget {
		dropIdx := -1
		for i := 0; i < len(messages)-2; i++ {
			if messages[i].Role == "system" {
				continue
			}
			dropIdx = i
			break
		}
		if dropIdx < 0 {
			break
		}
		messages = append(messages[:dropIdx], messages[dropIdx+1:]...)
	}
	return messages
}

func estimateTokens(messages []provider.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / charsPerToken
	}
	return total
}
