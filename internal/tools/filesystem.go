package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFileTool reads the contents of a file inside the workspace.
type ReadFileTool struct {
	root string
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Tier() int    { return TierReadOnly }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Paths are relative to the workspace; access outside the workspace is not allowed."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read, relative to the workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path, errMsg := resolveInWorkspace(WorkspaceFrom(ctx, t.root), GetString(params, "path", ""))
	if errMsg != "" {
		return errMsg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	return string(content), nil
}

// WriteFileTool writes content to a file inside the workspace.
type WriteFileTool struct {
	root string
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Tier() int    { return TierWrite }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates parent directories if needed. Writes are restricted to the workspace."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to write, relative to the workspace",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content := GetString(params, "content", "")
	path, errMsg := resolveInWorkspace(WorkspaceFrom(ctx, t.root), GetString(params, "path", ""))
	if errMsg != "" {
		return errMsg, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Sprintf("Error creating directory: %v", err), nil
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error writing file: %v", err), nil
	}

	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool replaces text in a file inside the workspace.
type EditFileTool struct {
	root string
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Tier() int    { return TierWrite }

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing text. Useful for making targeted changes. Edits are restricted to the workspace."
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to edit, relative to the workspace",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "The text to find and replace",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "The replacement text",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	oldText := GetString(params, "old_text", "")
	newText := GetString(params, "new_text", "")
	if oldText == "" {
		return "Error: old_text is required", nil
	}

	path, errMsg := resolveInWorkspace(WorkspaceFrom(ctx, t.root), GetString(params, "path", ""))
	if errMsg != "" {
		return errMsg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, oldText) {
		return fmt.Sprintf("Error: text not found in file: %s", path), nil
	}

	newContent := strings.Replace(contentStr, oldText, newText, 1)

	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}

	return fmt.Sprintf("Successfully edited %s", path), nil
}

// ListFilesTool lists directory contents inside the workspace.
type ListFilesTool struct {
	root string
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Tier() int    { return TierReadOnly }

func (t *ListFilesTool) Description() string {
	return "List the contents of a directory inside the workspace."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The directory to list, relative to the workspace (default: workspace root)",
			},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path, errMsg := resolveInWorkspace(WorkspaceFrom(ctx, t.root), GetString(params, "path", "."))
	if errMsg != "" {
		return errMsg, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: directory not found: %s", path), nil
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error reading directory: %v", err), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Contents of %s:\n", path))

	for _, entry := range entries {
		info, _ := entry.Info()
		if entry.IsDir() {
			result.WriteString(fmt.Sprintf("  [DIR]  %s/\n", entry.Name()))
		} else if info != nil {
			result.WriteString(fmt.Sprintf("  [FILE] %s (%d bytes)\n", entry.Name(), info.Size()))
		} else {
			result.WriteString(fmt.Sprintf("  [FILE] %s\n", entry.Name()))
		}
	}

	return result.String(), nil
}

// NewReadFileTool creates a new ReadFileTool scoped to the workspace.
func NewReadFileTool(workspace string) *ReadFileTool {
	return &ReadFileTool{root: normalizeRoot(workspace)}
}

// NewWriteFileTool creates a new WriteFileTool scoped to the workspace.
func NewWriteFileTool(workspace string) *WriteFileTool {
	return &WriteFileTool{root: normalizeRoot(workspace)}
}

// NewEditFileTool creates a new EditFileTool scoped to the workspace.
func NewEditFileTool(workspace string) *EditFileTool {
	return &EditFileTool{root: normalizeRoot(workspace)}
}

// NewListFilesTool creates a new ListFilesTool scoped to the workspace.
func NewListFilesTool(workspace string) *ListFilesTool {
	return &ListFilesTool{root: normalizeRoot(workspace)}
}

// resolveInWorkspace joins path against root and verifies the result stays
// inside it. Relative paths resolve against the root; absolute paths must
// already point inside it. Returns the cleaned absolute path, or a
// user-facing error message.
func resolveInWorkspace(root, path string) (string, string) {
	if strings.TrimSpace(path) == "" {
		return "", "Error: path is required"
	}
	if root == "" {
		return "", "Error: workspace not configured"
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !isWithin(root, p) {
		return "", fmt.Sprintf("Error: path outside workspace: %s", path)
	}
	return p, ""
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func normalizeRoot(root string) string {
	if root == "" {
		return ""
	}
	return expandPath(root)
}

func isWithin(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}
