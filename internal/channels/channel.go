// Package channels contains the messaging platform adapters. Each adapter
// normalizes platform events into bus messages and delivers outbound replies
// with platform-specific chunking.
package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/goclaw/goclaw/internal/bus"
)

// Channel defines the interface for chat platforms (Slack, WhatsApp, etc).
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

// BuildPairingReply renders the challenge an unknown sender receives. The
// "Pairing code:" line is a stable contract; operator tooling greps for it.
func BuildPairingReply(channel, code string) string {
	var b strings.Builder
	b.WriteString("You are not paired with this assistant yet.\n")
	fmt.Fprintf(&b, "Pairing code: %s\n", code)
	fmt.Fprintf(&b, "Ask the operator to run: goclaw security approve %s\n", code)
	fmt.Fprintf(&b, "The code expires; message again on %s to get a fresh one.", channel)
	return b.String()
}

// ChunkText splits text into chunks of at most limit runes, preferring to
// break on newlines, then spaces. Platform message-size limits are rune
// counts, not bytes.
func ChunkText(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut == limit {
			for i := limit; i > limit/2; i-- {
				if runes[i-1] == ' ' {
					cut = i
					break
				}
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
