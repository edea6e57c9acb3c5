package channels

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"
	"github.com/slack-go/slack/slackevents"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
)

// Operator tooling greps replies for this pattern, it must stay stable.
var pairingCodePattern = regexp.MustCompile(`Pairing code:\s+([A-Z0-9]+)`)

func consumeOne(t *testing.T, b *bus.MessageBus) *bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("no inbound message published: %v", err)
	}
	return msg
}

func TestBuildPairingReply(t *testing.T) {
	reply := BuildPairingReply("whatsapp", "A1B2C3D4")

	m := pairingCodePattern.FindStringSubmatch(reply)
	if m == nil {
		t.Fatalf("reply does not contain a pairing code line:\n%s", reply)
	}
	if m[1] != "A1B2C3D4" {
		t.Errorf("extracted code = %q, want A1B2C3D4", m[1])
	}
	if !strings.Contains(reply, "goclaw security approve A1B2C3D4") {
		t.Errorf("reply missing approve command hint:\n%s", reply)
	}
	if !strings.Contains(reply, "whatsapp") {
		t.Errorf("reply missing channel name:\n%s", reply)
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "short text passes through",
			text:  "hello",
			limit: 10,
			want:  []string{"hello"},
		},
		{
			name:  "exact limit passes through",
			text:  "12345",
			limit: 5,
			want:  []string{"12345"},
		},
		{
			name:  "zero limit disables chunking",
			text:  strings.Repeat("x", 100),
			limit: 0,
			want:  []string{strings.Repeat("x", 100)},
		},
		{
			name:  "breaks at newline before limit",
			text:  "one\ntwo\nthree",
			limit: 8,
			want:  []string{"one\ntwo", "three"},
		},
		{
			name:  "breaks at space when no newline",
			text:  "alpha beta",
			limit: 8,
			want:  []string{"alpha", "beta"},
		},
		{
			name:  "hard cut when no break point",
			text:  "abcdefghij",
			limit: 4,
			want:  []string{"abcd", "efgh", "ij"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("ChunkText() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkTextRuneSafe(t *testing.T) {
	text := strings.Repeat("日本語テキスト", 10)
	chunks := ChunkText(text, 7)

	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := len([]rune(chunk)); n > 7 {
			t.Errorf("chunk %d has %d runes, limit 7", i, n)
		}
	}
}

func newTestSlackChannel(b *bus.MessageBus) *SlackChannel {
	c := NewSlackChannel(config.SlackConfig{Enabled: true}, b)
	c.botUserID = "UBOT"
	return c
}

func callbackEvent(data interface{}) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type:       slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{Data: data},
	}
}

func TestSlackDirectMessagePublished(t *testing.T) {
	b := bus.NewMessageBus()
	c := newTestSlackChannel(b)

	c.handleCallback(callbackEvent(&slackevents.MessageEvent{
		User:        "U123",
		Channel:     "D999",
		ChannelType: "im",
		Text:        "  hello there  ",
	}))

	msg := consumeOne(t, b)
	if msg.From != "U123" {
		t.Errorf("From = %q, want U123", msg.From)
	}
	if msg.Channel != "slack" {
		t.Errorf("Channel = %q, want slack", msg.Channel)
	}
	if msg.Text != "hello there" {
		t.Errorf("Text = %q, want trimmed text", msg.Text)
	}
	if msg.GroupID != "" {
		t.Errorf("GroupID = %q, want empty for a DM", msg.GroupID)
	}
}

func TestSlackIgnoresNonDMMessageEvents(t *testing.T) {
	b := bus.NewMessageBus()
	c := newTestSlackChannel(b)

	// A mention in a channel fires both a message event and an app mention
	// event. Only the mention may publish, otherwise the turn runs twice.
	c.handleCallback(callbackEvent(&slackevents.MessageEvent{
		User:        "U123",
		Channel:     "C42",
		ChannelType: "channel",
		Text:        "<@UBOT> do something",
	}))

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("channel message event published %d messages, want 0", n)
	}
}

func TestSlackIgnoresBotAndEditedMessages(t *testing.T) {
	b := bus.NewMessageBus()
	c := newTestSlackChannel(b)

	c.handleCallback(callbackEvent(&slackevents.MessageEvent{
		User: "U123", ChannelType: "im", Text: "hi", BotID: "B77",
	}))
	c.handleCallback(callbackEvent(&slackevents.MessageEvent{
		User: "U123", ChannelType: "im", Text: "hi", SubType: "message_changed",
	}))
	c.handleCallback(callbackEvent(&slackevents.MessageEvent{
		User: "UBOT", ChannelType: "im", Text: "hi",
	}))

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("filtered events published %d messages, want 0", n)
	}
}

func TestSlackAppMentionStripsBotTag(t *testing.T) {
	b := bus.NewMessageBus()
	c := newTestSlackChannel(b)

	c.handleCallback(callbackEvent(&slackevents.AppMentionEvent{
		User:    "U123",
		Channel: "C42",
		Text:    "<@UBOT> summarize the doc",
	}))

	msg := consumeOne(t, b)
	if msg.Text != "summarize the doc" {
		t.Errorf("Text = %q, want mention stripped", msg.Text)
	}
	if msg.GroupID != "C42" {
		t.Errorf("GroupID = %q, want C42", msg.GroupID)
	}
	if got := msg.SessionKey(); got != "slack:group:C42" {
		t.Errorf("SessionKey() = %q, want slack:group:C42", got)
	}
}

func TestSlackMentionOnlyTextDropped(t *testing.T) {
	b := bus.NewMessageBus()
	c := newTestSlackChannel(b)

	c.handleCallback(callbackEvent(&slackevents.AppMentionEvent{
		User:    "U123",
		Channel: "C42",
		Text:    "<@UBOT>",
	}))

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("empty mention published %d messages, want 0", n)
	}
}

func TestKafkaInboundEnvelope(t *testing.T) {
	b := bus.NewMessageBus()
	c := NewKafkaChannel(config.KafkaConfig{}, b)

	c.handleRecord(kafka.Message{
		Value: []byte(`{"from": "svc-report", "text": "nightly summary please", "group_id": "ops"}`),
	})

	msg := consumeOne(t, b)
	if msg.From != "svc-report" {
		t.Errorf("From = %q, want svc-report", msg.From)
	}
	if msg.Channel != "kafka" {
		t.Errorf("Channel = %q, want kafka even when the envelope omits it", msg.Channel)
	}
	if msg.GroupID != "ops" {
		t.Errorf("GroupID = %q, want ops", msg.GroupID)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("publish did not stamp id and timestamp")
	}
}

func TestKafkaInboundFromFallsBackToKey(t *testing.T) {
	b := bus.NewMessageBus()
	c := NewKafkaChannel(config.KafkaConfig{}, b)

	c.handleRecord(kafka.Message{
		Key:   []byte("producer-7"),
		Value: []byte(`{"text": "ping"}`),
	})

	if msg := consumeOne(t, b); msg.From != "producer-7" {
		t.Errorf("From = %q, want key fallback producer-7", msg.From)
	}
}

func TestKafkaInboundRejectsBadRecords(t *testing.T) {
	b := bus.NewMessageBus()
	c := NewKafkaChannel(config.KafkaConfig{}, b)

	c.handleRecord(kafka.Message{Value: []byte(`not json`)})
	c.handleRecord(kafka.Message{Value: []byte(`{"from": "x", "text": "   "}`)})
	c.handleRecord(kafka.Message{Value: []byte(`{"text": "no sender"}`)})

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("bad records published %d messages, want 0", n)
	}
}

func TestWhatsAppTargetJID(t *testing.T) {
	jid, err := targetJID("4915551234567")
	if err != nil {
		t.Fatalf("targetJID(bare user) error: %v", err)
	}
	if got := jid.String(); got != "4915551234567@s.whatsapp.net" {
		t.Errorf("bare user JID = %q", got)
	}

	jid, err = targetJID("12036304-1wA5@g.us")
	if err != nil {
		t.Fatalf("targetJID(group) error: %v", err)
	}
	if jid.Server != "g.us" {
		t.Errorf("group JID server = %q, want g.us", jid.Server)
	}

	if _, err := targetJID(""); err == nil {
		t.Error("targetJID(empty) should fail")
	}
}

func TestWhatsAppExtractText(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Errorf("extractText(nil) = %q, want empty", got)
	}
	if got := extractText(&waE2E.Message{Conversation: proto.String("  hi  ")}); got != "hi" {
		t.Errorf("conversation text = %q, want trimmed hi", got)
	}
	ext := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")},
	}
	if got := extractText(ext); got != "quoted reply" {
		t.Errorf("extended text = %q, want quoted reply", got)
	}
}
