package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/security"
	"github.com/goclaw/goclaw/internal/store"
)

func TestSecurityAllowThenStatus(t *testing.T) {
	setTestHome(t)

	out, err := runRootCommand(t, "security", "allow", "slack", "U123")
	if err != nil {
		t.Fatalf("security allow failed: %v", err)
	}
	if !strings.Contains(out, "✓ Allowed U123 on slack") {
		t.Fatalf("expected confirmation, got %q", out)
	}

	out, err = runRootCommand(t, "security", "status")
	if err != nil {
		t.Fatalf("security status failed: %v", err)
	}
	if !strings.Contains(out, "Policy:      pairing") {
		t.Fatalf("expected default policy line, got %q", out)
	}
	if !strings.Contains(out, "U123 on slack (via manual") {
		t.Fatalf("expected dynamic allowlist entry, got %q", out)
	}
}

func TestSecurityApproveRoundTrip(t *testing.T) {
	tmp := setTestHome(t)

	// Mint a pairing code the way the daemon's gate would.
	st, err := store.NewStore(filepath.Join(tmp, "goclaw.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	gate := security.NewGate(st, config.SecurityConfig{
		Policy:            config.PolicyPairing,
		PairingCodeLength: 8,
		PairingTTL:        10 * time.Minute,
	}, map[string][]string{"whatsapp": {"owner"}})
	dec, err := gate.Check("4915551234", "whatsapp")
	if err != nil {
		t.Fatalf("gate check: %v", err)
	}
	st.Close()
	if dec.Allowed || dec.PairingCode == "" {
		t.Fatalf("expected pairing challenge, got %+v", dec)
	}

	out, err := runRootCommand(t, "security", "approve", dec.PairingCode)
	if err != nil {
		t.Fatalf("security approve failed: %v", err)
	}
	if !strings.Contains(out, "✓ Paired 4915551234 on whatsapp") {
		t.Fatalf("expected pairing confirmation, got %q", out)
	}

	// The code is single use.
	if _, err := runRootCommand(t, "security", "approve", dec.PairingCode); err == nil {
		t.Fatal("expected second approve of the same code to fail")
	}

	out, err = runRootCommand(t, "security", "status")
	if err != nil {
		t.Fatalf("security status failed: %v", err)
	}
	if !strings.Contains(out, "4915551234 on whatsapp (via pairing") {
		t.Fatalf("expected paired identity in allowlist, got %q", out)
	}
}

func TestSecurityApproveUnknownCode(t *testing.T) {
	setTestHome(t)

	_, err := runRootCommand(t, "security", "approve", "NOPE1234")
	if err == nil {
		t.Fatal("expected approve of unknown code to fail")
	}
	if !strings.Contains(err.Error(), "unknown, expired, or already used") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityEventsEmpty(t *testing.T) {
	setTestHome(t)

	out, err := runRootCommand(t, "security", "events")
	if err != nil {
		t.Fatalf("security events failed: %v", err)
	}
	if !strings.Contains(out, "No security events recorded.") {
		t.Fatalf("expected empty events notice, got %q", out)
	}
}

func TestSecurityLimitsShowsConfig(t *testing.T) {
	setTestHome(t)

	out, err := runRootCommand(t, "security", "limits")
	if err != nil {
		t.Fatalf("security limits failed: %v", err)
	}
	if !strings.Contains(out, "Max requests:   20 per 1m0s") {
		t.Fatalf("expected default limits, got %q", out)
	}
}
