package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/goclaw/goclaw/internal/store"
)

// MemoryStore is the slice of the store the memory tools need.
// Implemented by store.Store.
type MemoryStore interface {
	SetMemory(identity, key, value string) error
	GetMemory(identity, key string) (string, error)
	ListMemory(identity string, limit int) ([]*store.MemoryEntry, error)
	DeleteMemory(identity, key string) error
}

const recallListLimit = 50

// MemorySaveTool stores a piece of information under a key for the calling
// identity.
type MemorySaveTool struct {
	store MemoryStore
}

func NewMemorySaveTool(st MemoryStore) *MemorySaveTool {
	return &MemorySaveTool{store: st}
}

func (t *MemorySaveTool) Name() string { return "memory_save" }
func (t *MemorySaveTool) Tier() int    { return TierWrite }

func (t *MemorySaveTool) Description() string {
	return "Store a piece of information in long-term memory under a key. Use this when the user asks you to remember something. Saving to an existing key replaces its value."
}

func (t *MemorySaveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{
				"type":        "string",
				"description": "Short identifier for the memory, e.g. 'birthday' or 'favorite_editor'",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "The information to remember",
			},
		},
		"required": []string{"key", "value"},
	}
}

func (t *MemorySaveTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	key := strings.TrimSpace(GetString(params, "key", ""))
	value := GetString(params, "value", "")

	if key == "" {
		return "Error: key is required", nil
	}
	if value == "" {
		return "Error: value is required", nil
	}

	cc, ok := CallContextFrom(ctx)
	if !ok || cc.Identity == "" {
		return "Error: no caller identity for this conversation", nil
	}

	if err := t.store.SetMemory(cc.Identity, key, value); err != nil {
		return fmt.Sprintf("Error storing memory: %v", err), nil
	}

	return fmt.Sprintf("Remembered %q: %s", key, truncate(value, 80)), nil
}

// MemoryRecallTool retrieves stored memories for the calling identity.
type MemoryRecallTool struct {
	store MemoryStore
}

func NewMemoryRecallTool(st MemoryStore) *MemoryRecallTool {
	return &MemoryRecallTool{store: st}
}

func (t *MemoryRecallTool) Name() string { return "memory_recall" }
func (t *MemoryRecallTool) Tier() int    { return TierReadOnly }

func (t *MemoryRecallTool) Description() string {
	return "Recall information from long-term memory. Provide a key for one entry, or omit it to list everything stored for this user."
}

func (t *MemoryRecallTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{
				"type":        "string",
				"description": "The key to look up. Omit to list all memories.",
			},
		},
	}
}

func (t *MemoryRecallTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	cc, ok := CallContextFrom(ctx)
	if !ok || cc.Identity == "" {
		return "Error: no caller identity for this conversation", nil
	}

	key := strings.TrimSpace(GetString(params, "key", ""))
	if key != "" {
		value, err := t.store.GetMemory(cc.Identity, key)
		if err != nil {
			return fmt.Sprintf("Error recalling memory: %v", err), nil
		}
		if value == "" {
			return fmt.Sprintf("No memory stored under %q.", key), nil
		}
		return fmt.Sprintf("%s: %s", key, value), nil
	}

	entries, err := t.store.ListMemory(cc.Identity, recallListLimit)
	if err != nil {
		return fmt.Sprintf("Error listing memories: %v", err), nil
	}
	if len(entries) == 0 {
		return "No memories stored.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stored memories (%d):\n", len(entries)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", e.Key, truncate(e.Value, 120)))
	}
	return sb.String(), nil
}

// MemoryForgetTool removes a stored memory for the calling identity.
type MemoryForgetTool struct {
	store MemoryStore
}

func NewMemoryForgetTool(st MemoryStore) *MemoryForgetTool {
	return &MemoryForgetTool{store: st}
}

func (t *MemoryForgetTool) Name() string { return "memory_forget" }
func (t *MemoryForgetTool) Tier() int    { return TierWrite }

func (t *MemoryForgetTool) Description() string {
	return "Delete a memory by key. Forgetting an unknown key is not an error."
}

func (t *MemoryForgetTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{
				"type":        "string",
				"description": "The key of the memory to delete",
			},
		},
		"required": []string{"key"},
	}
}

func (t *MemoryForgetTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	key := strings.TrimSpace(GetString(params, "key", ""))
	if key == "" {
		return "Error: key is required", nil
	}

	cc, ok := CallContextFrom(ctx)
	if !ok || cc.Identity == "" {
		return "Error: no caller identity for this conversation", nil
	}

	if err := t.store.DeleteMemory(cc.Identity, key); err != nil {
		return fmt.Sprintf("Error deleting memory: %v", err), nil
	}

	return fmt.Sprintf("Forgot %q.", key), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
