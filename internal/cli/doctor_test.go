package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDoctorReportsDefaultSetup(t *testing.T) {
	setTestHome(t)

	// The sandbox check depends on the host container runtime, so the
	// command's exit status is not asserted here.
	out, _ := runRootCommand(t, "doctor")
	for _, want := range []string{
		"[WARN] config: no config file",
		"[PASS] state dir:",
		"[PASS] store:",
		"[FAIL] provider:",
		"set providers.openai.apiKey in config or export OPENAI_API_KEY",
		"[WARN] channels: none enabled",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in doctor output, got %q", want, out)
		}
	}
}

func TestDoctorFailsOnInvalidConfig(t *testing.T) {
	tmp := setTestHome(t)
	if err := os.WriteFile(filepath.Join(tmp, "config.json"), []byte(`{"model":`), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	out, err := runRootCommand(t, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail on invalid config")
	}
	if !strings.Contains(out, "[FAIL] config:") {
		t.Fatalf("expected config failure line, got %q", out)
	}
}

func TestDoctorChecksEnabledChannels(t *testing.T) {
	tmp := setTestHome(t)
	cfgJSON := `{"providers":{"openai":{"apiKey":"sk-test"}},"channels":{"slack":{"enabled":true},"kafka":{"enabled":true}}}`
	if err := os.WriteFile(filepath.Join(tmp, "config.json"), []byte(cfgJSON), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _ := runRootCommand(t, "doctor")
	if !strings.Contains(out, "[PASS] provider: openai/gpt-4o") {
		t.Fatalf("expected provider pass with key configured, got %q", out)
	}
	if !strings.Contains(out, "[FAIL] slack: enabled but botToken or appToken missing") {
		t.Fatalf("expected slack token failure, got %q", out)
	}
	if !strings.Contains(out, "[PASS] kafka: localhost:9092 (goclaw.inbound -> goclaw.outbound)") {
		t.Fatalf("expected kafka broker summary, got %q", out)
	}
}
