// Package security implements admission control for inbound identities:
// static and dynamic allowlists, pairing challenges, and the audit trail.
package security

import (
	"log/slog"
	"strings"
	"time"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/store"
)

// Decision is the outcome of an admission check for one (identity, channel) pair.
type Decision struct {
	Allowed     bool
	Reason      string
	PairingCode string
}

// Store is the persistence surface the gate needs. *store.Store satisfies it.
type Store interface {
	IsAllowed(identity, channel string) (bool, error)
	AddAllowed(identity, channel, via string) error
	SavePairingCode(pc *store.PairingCode) error
	GetPendingPairingCode(identity, channel string, now time.Time) (*store.PairingCode, error)
	ConsumePairingCode(code string, now time.Time) (*store.PairingCode, error)
	AppendSecurityEvent(e *store.SecurityEvent) error
}

// Gate decides whether an inbound identity may talk to the agent.
// Unknown identities are either challenged with a pairing code or
// refused outright, depending on the configured policy.
type Gate struct {
	store       Store
	policy      string
	codeLength  int
	codeTTL     time.Duration
	staticAllow map[string][]string
	now         func() time.Time
}

// NewGate creates a gate. staticAllow maps a channel name to the identities
// allowed by configuration; an empty or missing list leaves that channel open.
func NewGate(st Store, cfg config.SecurityConfig, staticAllow map[string][]string) *Gate {
	return &Gate{
		store:       st,
		policy:      cfg.Policy,
		codeLength:  cfg.PairingCodeLength,
		codeTTL:     cfg.PairingTTL,
		staticAllow: staticAllow,
		now:         time.Now,
	}
}

// Check runs the admission algorithm for one inbound message. A channel with
// no static allowlist admits everyone. A configured static allowlist admits
// its members directly; everyone else is checked against the dynamic
// allowlist, then challenged or refused per policy. Every decision is
// recorded as a security event.
func (g *Gate) Check(identity, channel string) (Decision, error) {
	id := strings.TrimSpace(identity)

	allow := g.staticAllow[channel]
	if len(allow) == 0 {
		g.recordEvent(store.EventAllowlistHit, id, channel, "channel open, no static allowlist")
		return Decision{Allowed: true}, nil
	}
	if containsIdentity(allow, id) {
		g.recordEvent(store.EventAllowlistHit, id, channel, "static allowlist")
		return Decision{Allowed: true}, nil
	}

	ok, err := g.store.IsAllowed(id, channel)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		g.recordEvent(store.EventAllowlistHit, id, channel, "dynamic allowlist")
		return Decision{Allowed: true}, nil
	}

	if g.policy == config.PolicyPairing {
		code, err := g.pendingOrNewCode(id, channel)
		if err != nil {
			return Decision{}, err
		}
		g.recordEvent(store.EventBlocked, id, channel, "pairing code issued: "+code)
		return Decision{Reason: "pairing required", PairingCode: code}, nil
	}

	g.recordEvent(store.EventBlocked, id, channel, "strict policy")
	return Decision{Reason: "access denied"}, nil
}

// ApprovePairing consumes a pairing code and promotes its identity to the
// dynamic allowlist. Exactly one concurrent approval of the same code can
// succeed; the rest get store.ErrPairingCodeInvalid.
func (g *Gate) ApprovePairing(code string) (*store.PairingCode, error) {
	pc, err := g.store.ConsumePairingCode(strings.ToUpper(strings.TrimSpace(code)), g.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := g.store.AddAllowed(pc.Identity, pc.Channel, "pairing"); err != nil {
		return nil, err
	}
	g.recordEvent(store.EventPairingApproved, pc.Identity, pc.Channel, "code "+pc.Code)
	return pc, nil
}

// pendingOrNewCode reuses an unexpired unused code for the identity so that
// repeated messages before approval do not mint a fresh code each time.
func (g *Gate) pendingOrNewCode(identity, channel string) (string, error) {
	now := g.now().UTC()
	pending, err := g.store.GetPendingPairingCode(identity, channel, now)
	if err != nil {
		return "", err
	}
	if pending != nil {
		return pending.Code, nil
	}

	code, err := GenerateCode(g.codeLength)
	if err != nil {
		return "", err
	}
	pc := &store.PairingCode{
		Code:      code,
		Identity:  identity,
		Channel:   channel,
		ExpiresAt: now.Add(g.codeTTL),
	}
	if err := g.store.SavePairingCode(pc); err != nil {
		return "", err
	}
	return code, nil
}

// recordEvent appends to the audit trail. Audit failures are logged, not
// propagated, so a flaky disk cannot turn into a user-facing refusal.
func (g *Gate) recordEvent(kind, identity, channel, detail string) {
	err := g.store.AppendSecurityEvent(&store.SecurityEvent{
		Kind:     kind,
		Identity: identity,
		Channel:  channel,
		Detail:   detail,
	})
	if err != nil {
		slog.Warn("security event append failed", "kind", kind, "identity", identity, "error", err)
	}
}

func containsIdentity(list []string, identity string) bool {
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSpace(entry), identity) {
			return true
		}
	}
	return false
}
