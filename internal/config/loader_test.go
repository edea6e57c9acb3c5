package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadResolvedConfigMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	main := filepath.Join(dir, "config.json")

	if err := os.WriteFile(base, []byte(`{"model": {"name": "openai/gpt-4o", "maxTokens": 4096}}`), 0o600); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(main, []byte(`{"$include": "base.json", "model": {"maxTokens": 2048}}`), 0o600); err != nil {
		t.Fatalf("write main: %v", err)
	}

	data, err := loadResolvedConfig(main)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Model.Name != "openai/gpt-4o" {
		t.Errorf("included value lost: %q", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 2048 {
		t.Errorf("including file should win: %d", cfg.Model.MaxTokens)
	}
}

func TestLoadResolvedConfigDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	if err := os.WriteFile(a, []byte(`{"$include": "b.json"}`), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte(`{"$include": "a.json"}`), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if _, err := loadResolvedConfig(a); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestSubstituteEnvValues(t *testing.T) {
	t.Setenv("GOCLAW_TEST_TOKEN", "sekret")
	raw := map[string]any{
		"channels": map[string]any{
			"slack": map[string]any{
				"botToken": "${GOCLAW_TEST_TOKEN}",
				"appToken": "${GOCLAW_TEST_UNSET_VAR}",
			},
		},
	}
	substituteEnvValues(raw)
	slack := raw["channels"].(map[string]any)["slack"].(map[string]any)
	if slack["botToken"] != "sekret" {
		t.Errorf("env value not substituted: %v", slack["botToken"])
	}
	if slack["appToken"] != "${GOCLAW_TEST_UNSET_VAR}" {
		t.Errorf("unset vars must stay literal: %v", slack["appToken"])
	}
}

func TestDeepMergePreservesSiblings(t *testing.T) {
	dst := map[string]any{
		"model": map[string]any{"name": "a", "maxTokens": float64(1)},
	}
	src := map[string]any{
		"model": map[string]any{"name": "b"},
		"agent": map[string]any{"historyWindow": float64(9)},
	}
	deepMerge(dst, src)
	model := dst["model"].(map[string]any)
	if model["name"] != "b" || model["maxTokens"] != float64(1) {
		t.Errorf("merge broke siblings: %v", model)
	}
	if dst["agent"].(map[string]any)["historyWindow"] != float64(9) {
		t.Errorf("new subtree missing: %v", dst["agent"])
	}
}
