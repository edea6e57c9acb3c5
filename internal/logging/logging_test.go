package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestBuildHandlersFanout(t *testing.T) {
	var console, file bytes.Buffer
	handlers, terminal := buildHandlers(slog.LevelInfo, &console, &file)
	if len(handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(handlers))
	}
	if terminal == nil {
		t.Fatal("expected terminal handler")
	}
	for _, h := range handlers {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
		rec.Add("key", "value")
		if err := h.Handle(context.Background(), rec); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if !strings.Contains(console.String(), "hello") {
		t.Errorf("console output missing message: %q", console.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v (%q)", err, file.String())
	}
	if entry["msg"] != "hello" || entry["key"] != "value" {
		t.Errorf("unexpected JSON entry: %v", entry)
	}
}

func TestBuildHandlersRespectsLevel(t *testing.T) {
	var console bytes.Buffer
	handlers, _ := buildHandlers(slog.LevelWarn, &console, nil)
	if len(handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(handlers))
	}
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "quiet", 0)
	if handlers[0].Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	_ = rec
}

func TestJournalKey(t *testing.T) {
	cases := map[string]string{
		"session.key": "SESSION_KEY",
		"tool-name":   "TOOL_NAME",
		"Already_OK9": "ALREADY_OK9",
	}
	for in, want := range cases {
		if got := journalKey(in); got != want {
			t.Errorf("journalKey(%q) = %q, want %q", in, got, want)
		}
	}
}
