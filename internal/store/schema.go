package store

import (
	"time"
)

// Session is one conversation thread, scoped to an identity/channel pair for
// direct messages or a group/channel pair for group chats.
type Session struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Identity     string    `json:"identity"`
	Channel      string    `json:"channel"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Message is one persisted conversation turn. Immutable once written.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant, system, tool
	Content   string    `json:"content"`
	ToolCalls string    `json:"tool_calls,omitempty"` // JSON blob
	CreatedAt time.Time `json:"created_at"`
}

// MemoryEntry is one long-term key-value memory item for an identity.
type MemoryEntry struct {
	Identity  string    `json:"identity"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllowlistEntry is one dynamically approved identity.
type AllowlistEntry struct {
	Identity  string    `json:"identity"`
	Channel   string    `json:"channel"`
	AddedVia  string    `json:"added_via,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PairingCode is a short-lived single-use token challenging an unknown
// identity. Consuming it is guarded by a conditional update so that exactly
// one concurrent approval can win, even across processes sharing the store.
type PairingCode struct {
	Code      string    `json:"code"`
	Identity  string    `json:"identity"`
	Channel   string    `json:"channel"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SecurityEvent is one append-only audit record for a gate decision.
type SecurityEvent struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Identity  string    `json:"identity"`
	Channel   string    `json:"channel"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Security event kinds.
const (
	EventAllowlistHit    = "allowlist_hit"
	EventBlocked         = "blocked"
	EventPairingApproved = "pairing_approved"
)

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	session_key TEXT UNIQUE NOT NULL,
	identity TEXT NOT NULL,
	channel TEXT NOT NULL,
	model TEXT DEFAULT '',
	system_prompt TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_active_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity, channel);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS memory (
	identity TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (identity, key)
);

CREATE TABLE IF NOT EXISTS allowlist (
	identity TEXT NOT NULL,
	channel TEXT NOT NULL,
	added_via TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (identity, channel)
);

CREATE TABLE IF NOT EXISTS pairing_codes (
	code TEXT PRIMARY KEY,
	identity TEXT NOT NULL,
	channel TEXT NOT NULL,
	used INTEGER NOT NULL DEFAULT 0,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_pairing_identity ON pairing_codes(identity, channel, used);

CREATE TABLE IF NOT EXISTS security_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	identity TEXT NOT NULL,
	channel TEXT NOT NULL,
	detail TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_security_events_identity ON security_events(identity, channel);
CREATE INDEX IF NOT EXISTS idx_security_events_created ON security_events(created_at);
`
