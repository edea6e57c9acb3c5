package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionUpsertAndGet(t *testing.T) {
	s := newTestStore(t)

	if sess, err := s.GetSessionByKey("slack:U1"); err != nil || sess != nil {
		t.Fatalf("expected no session, got %v err %v", sess, err)
	}

	sess := &Session{
		ID:       "sess-1",
		Key:      "slack:U1",
		Identity: "U1",
		Channel:  "slack",
		Model:    "openai/gpt-4o",
	}
	if err := s.UpsertSession(sess); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetSessionByKey("slack:U1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != "sess-1" || got.Identity != "U1" || got.Channel != "slack" {
		t.Fatalf("unexpected session: %+v", got)
	}

	// Second upsert with the same key keeps the original id and updates model.
	later := &Session{ID: "sess-other", Key: "slack:U1", Identity: "U1", Channel: "slack", Model: "groq/llama-3.3-70b"}
	if err := s.UpsertSession(later); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetSessionByKey("slack:U1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("upsert must not replace id: %q", got.ID)
	}
	if got.Model != "groq/llama-3.3-70b" {
		t.Errorf("upsert did not update model: %q", got.Model)
	}
}

func TestMessagesRecentWindow(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 5; i++ {
		m := &Message{SessionID: "sess-1", Role: "user", Content: fmt.Sprintf("msg %d", i)}
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if m.ID == 0 {
			t.Fatalf("append did not backfill id")
		}
	}

	msgs, err := s.RecentMessages("sess-1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg 3" || msgs[2].Content != "msg 5" {
		t.Errorf("window not chronological: %q .. %q", msgs[0].Content, msgs[2].Content)
	}

	other, err := s.RecentMessages("sess-2", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no messages for other session, got %d", len(other))
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetMemory("slack:U1", "favorite_color", "green"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMemory("slack:U1", "favorite_color", "blue"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.SetMemory("slack:U1", "timezone", "Europe/Berlin"); err != nil {
		t.Fatalf("set second: %v", err)
	}

	val, err := s.GetMemory("slack:U1", "favorite_color")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "blue" {
		t.Errorf("expected overwrite to win, got %q", val)
	}

	entries, err := s.ListMemory("slack:U1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if err := s.DeleteMemory("slack:U1", "timezone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if val, _ := s.GetMemory("slack:U1", "timezone"); val != "" {
		t.Errorf("expected deleted key empty, got %q", val)
	}
	if val, _ := s.GetMemory("slack:U2", "favorite_color"); val != "" {
		t.Errorf("memory leaked across identities: %q", val)
	}
}

func TestAllowlist(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.IsAllowed("U1", "slack")
	if err != nil || ok {
		t.Fatalf("expected not allowed, got %v err %v", ok, err)
	}
	if err := s.AddAllowed("U1", "slack", "pairing"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Duplicate add is a no-op.
	if err := s.AddAllowed("U1", "slack", "pairing"); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	ok, err = s.IsAllowed("U1", "slack")
	if err != nil || !ok {
		t.Fatalf("expected allowed, got %v err %v", ok, err)
	}
	// Same identity, different channel stays blocked.
	if ok, _ := s.IsAllowed("U1", "whatsapp"); ok {
		t.Error("allowlist must be channel-scoped")
	}

	entries, err := s.ListAllowed()
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v entries %d", err, len(entries))
	}
	if entries[0].AddedVia != "pairing" {
		t.Errorf("added_via lost: %q", entries[0].AddedVia)
	}
}

func TestPairingCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	pc := &PairingCode{Code: "A1B2C3D4", Identity: "U9", Channel: "slack", ExpiresAt: now.Add(10 * time.Minute)}
	if err := s.SavePairingCode(pc); err != nil {
		t.Fatalf("save: %v", err)
	}

	pending, err := s.GetPendingPairingCode("U9", "slack", now)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending == nil || pending.Code != "A1B2C3D4" {
		t.Fatalf("expected pending code, got %+v", pending)
	}

	got, err := s.ConsumePairingCode("A1B2C3D4", now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.Identity != "U9" || !got.Used {
		t.Errorf("unexpected consumed code: %+v", got)
	}

	if _, err := s.ConsumePairingCode("A1B2C3D4", now); !errors.Is(err, ErrPairingCodeInvalid) {
		t.Errorf("second consume must fail, got %v", err)
	}
	if _, err := s.ConsumePairingCode("NOPE", now); !errors.Is(err, ErrPairingCodeInvalid) {
		t.Errorf("unknown code must fail, got %v", err)
	}
}

func TestPairingCodeExpiry(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	pc := &PairingCode{Code: "EXPIRED1", Identity: "U9", Channel: "slack", ExpiresAt: now.Add(-time.Minute)}
	if err := s.SavePairingCode(pc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.ConsumePairingCode("EXPIRED1", now); !errors.Is(err, ErrPairingCodeInvalid) {
		t.Errorf("expired code must fail, got %v", err)
	}
	if pending, _ := s.GetPendingPairingCode("U9", "slack", now); pending != nil {
		t.Errorf("expired code must not be pending: %+v", pending)
	}
}

func TestPairingCodeConsumeOnceUnderConcurrency(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	pc := &PairingCode{Code: "RACE0001", Identity: "U7", Channel: "slack", ExpiresAt: now.Add(10 * time.Minute)}
	if err := s.SavePairingCode(pc); err != nil {
		t.Fatalf("save: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumePairingCode("RACE0001", now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrPairingCodeInvalid) {
			t.Errorf("unexpected consume error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSecurityEventsAppendOnly(t *testing.T) {
	s := newTestStore(t)

	kinds := []string{EventBlocked, EventPairingApproved, EventAllowlistHit}
	for _, k := range kinds {
		e := &SecurityEvent{Kind: k, Identity: "U1", Channel: "slack", Detail: "detail " + k}
		if err := s.AppendSecurityEvent(e); err != nil {
			t.Fatalf("append %s: %v", k, err)
		}
		if e.ID == 0 {
			t.Fatalf("append did not backfill id")
		}
	}

	events, err := s.RecentSecurityEvents(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != EventAllowlistHit {
		t.Errorf("expected newest first, got %q", events[0].Kind)
	}
}
