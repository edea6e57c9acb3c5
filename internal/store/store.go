// Package store owns the SQLite persistence for sessions, messages,
// long-term memory, the dynamic allowlist, pairing codes, and the security
// audit log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrPairingCodeInvalid is returned when a pairing code cannot be consumed
// because it does not exist, has expired, or was already used.
var ErrPairingCodeInvalid = errors.New("pairing code not found, expired, or already used")

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migrations for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE sessions ADD COLUMN system_prompt TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE messages ADD COLUMN tool_calls TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE allowlist ADD COLUMN added_via TEXT DEFAULT ''`)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// UpsertSession inserts the session or, when the key already exists, updates
// its mutable fields (model, system prompt, last-active time).
func (s *Store) UpsertSession(sess *Session) error {
	if sess.Key == "" {
		return fmt.Errorf("session key is required")
	}
	if sess.LastActiveAt.IsZero() {
		sess.LastActiveAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, session_key, identity, channel, model, system_prompt, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), ?)
		ON CONFLICT(session_key) DO UPDATE SET
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			last_active_at = excluded.last_active_at
	`, sess.ID, sess.Key, sess.Identity, sess.Channel, sess.Model, sess.SystemPrompt, nullableTime(sess.CreatedAt), sess.LastActiveAt)
	return err
}

// GetSessionByKey returns the session for key, or nil when none exists.
func (s *Store) GetSessionByKey(key string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, session_key, identity, channel, model, system_prompt, created_at, last_active_at
		FROM sessions WHERE session_key = ?
	`, key)
	sess := &Session{}
	err := row.Scan(&sess.ID, &sess.Key, &sess.Identity, &sess.Channel, &sess.Model, &sess.SystemPrompt, &sess.CreatedAt, &sess.LastActiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// AppendMessage appends one immutable message to a session's log.
func (s *Store) AppendMessage(m *Message) error {
	if m.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO messages (session_id, role, content, tool_calls, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.SessionID, m.Role, m.Content, m.ToolCalls, m.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// RecentMessages returns the last limit messages of a session in
// chronological order.
func (s *Store) RecentMessages(sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, tool_calls, created_at
		FROM messages WHERE session_id = ?
		ORDER BY id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Long-term memory
// ---------------------------------------------------------------------------

// SetMemory stores or replaces one memory entry for an identity.
func (s *Store) SetMemory(identity, key, value string) error {
	if identity == "" || key == "" {
		return fmt.Errorf("identity and key are required")
	}
	_, err := s.db.Exec(`
		INSERT INTO memory (identity, key, value, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(identity, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, identity, key, value)
	return err
}

// GetMemory returns the value for one memory key, or "" when absent.
func (s *Store) GetMemory(identity, key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM memory WHERE identity = ? AND key = ?`, identity, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// ListMemory returns all memory entries for an identity, most recent first.
func (s *Store) ListMemory(identity string, limit int) ([]*MemoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT identity, key, value, updated_at FROM memory
		WHERE identity = ? ORDER BY updated_at DESC, key LIMIT ?
	`, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MemoryEntry
	for rows.Next() {
		e := &MemoryEntry{}
		if err := rows.Scan(&e.Identity, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteMemory removes one memory entry. Missing keys are not an error.
func (s *Store) DeleteMemory(identity, key string) error {
	_, err := s.db.Exec(`DELETE FROM memory WHERE identity = ? AND key = ?`, identity, key)
	return err
}

// ---------------------------------------------------------------------------
// Dynamic allowlist
// ---------------------------------------------------------------------------

// IsAllowed reports whether the identity is on the dynamic allowlist for the
// channel.
func (s *Store) IsAllowed(identity, channel string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM allowlist WHERE identity = ? AND channel = ?`, identity, channel).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddAllowed adds an identity to the dynamic allowlist. Adding an existing
// entry is a no-op.
func (s *Store) AddAllowed(identity, channel, via string) error {
	if identity == "" || channel == "" {
		return fmt.Errorf("identity and channel are required")
	}
	_, err := s.db.Exec(`
		INSERT INTO allowlist (identity, channel, added_via) VALUES (?, ?, ?)
		ON CONFLICT(identity, channel) DO NOTHING
	`, identity, channel, via)
	return err
}

// ListAllowed returns all dynamic allowlist entries.
func (s *Store) ListAllowed() ([]*AllowlistEntry, error) {
	rows, err := s.db.Query(`SELECT identity, channel, added_via, created_at FROM allowlist ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AllowlistEntry
	for rows.Next() {
		e := &AllowlistEntry{}
		if err := rows.Scan(&e.Identity, &e.Channel, &e.AddedVia, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Pairing codes
// ---------------------------------------------------------------------------

// SavePairingCode persists a freshly issued code.
func (s *Store) SavePairingCode(pc *PairingCode) error {
	if pc.Code == "" {
		return fmt.Errorf("code is required")
	}
	if pc.CreatedAt.IsZero() {
		pc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO pairing_codes (code, identity, channel, used, expires_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, pc.Code, pc.Identity, pc.Channel, pc.ExpiresAt, pc.CreatedAt)
	return err
}

// GetPendingPairingCode returns the newest unused, unexpired code for an
// identity/channel pair, or nil when none exists. Used to re-issue the same
// challenge instead of minting a new code per message.
func (s *Store) GetPendingPairingCode(identity, channel string, now time.Time) (*PairingCode, error) {
	row := s.db.QueryRow(`
		SELECT code, identity, channel, used, expires_at, created_at
		FROM pairing_codes
		WHERE identity = ? AND channel = ? AND used = 0 AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1
	`, identity, channel, now)
	return scanPairingCode(row)
}

// GetPairingCode returns a code row regardless of state, or nil when absent.
func (s *Store) GetPairingCode(code string) (*PairingCode, error) {
	row := s.db.QueryRow(`
		SELECT code, identity, channel, used, expires_at, created_at
		FROM pairing_codes WHERE code = ?
	`, code)
	return scanPairingCode(row)
}

// ConsumePairingCode atomically marks an unexpired, unused code as used and
// returns it. The conditional update is the consume-once guarantee: under
// concurrent attempts for the same code exactly one caller observes
// RowsAffected == 1. Everyone else gets ErrPairingCodeInvalid.
func (s *Store) ConsumePairingCode(code string, now time.Time) (*PairingCode, error) {
	res, err := s.db.Exec(`
		UPDATE pairing_codes SET used = 1
		WHERE code = ? AND used = 0 AND expires_at > ?
	`, code, now)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrPairingCodeInvalid
	}
	pc, err := s.GetPairingCode(code)
	if err != nil {
		return nil, err
	}
	if pc == nil {
		return nil, ErrPairingCodeInvalid
	}
	return pc, nil
}

func scanPairingCode(row *sql.Row) (*PairingCode, error) {
	pc := &PairingCode{}
	var used int
	err := row.Scan(&pc.Code, &pc.Identity, &pc.Channel, &used, &pc.ExpiresAt, &pc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pc.Used = used != 0
	return pc, nil
}

// ---------------------------------------------------------------------------
// Security events
// ---------------------------------------------------------------------------

// AppendSecurityEvent appends one audit record.
func (s *Store) AppendSecurityEvent(e *SecurityEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO security_events (kind, identity, channel, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.Kind, e.Identity, e.Channel, e.Detail, e.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RecentSecurityEvents returns the newest limit audit records, newest first.
func (s *Store) RecentSecurityEvents(limit int) ([]*SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, kind, identity, channel, detail, created_at
		FROM security_events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SecurityEvent
	for rows.Next() {
		e := &SecurityEvent{}
		if err := rows.Scan(&e.ID, &e.Kind, &e.Identity, &e.Channel, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
