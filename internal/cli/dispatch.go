package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goclaw/goclaw/internal/agent"
	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/channels"
	"github.com/goclaw/goclaw/internal/ratelimit"
	"github.com/goclaw/goclaw/internal/security"
)

// turnProcessor is the slice of the agent loop the dispatcher needs.
type turnProcessor interface {
	Process(ctx context.Context, msg *bus.InboundMessage) (string, error)
}

// dispatcher drains the inbound bus and runs each message through rate
// limiting, the security gate, and the agent loop. Every message gets its
// own goroutine; ordering within a conversation is the channel adapter's
// concern, not the core's.
type dispatcher struct {
	bus     *bus.MessageBus
	limiter *ratelimit.Limiter
	gate    *security.Gate
	loop    turnProcessor
}

// run consumes inbound messages until ctx is cancelled.
func (d *dispatcher) run(ctx context.Context) {
	for {
		msg, err := d.bus.ConsumeInbound(ctx)
		if err != nil {
			return
		}
		go d.handle(ctx, msg)
	}
}

// handle produces exactly one reply for msg and publishes it outbound.
func (d *dispatcher) handle(ctx context.Context, msg *bus.InboundMessage) {
	d.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		To:      msg.ReplyTo(),
		Text:    d.process(ctx, msg),
	})
}

// process runs admission control and the agent turn, always returning a
// non-empty user-facing reply.
func (d *dispatcher) process(ctx context.Context, msg *bus.InboundMessage) string {
	// Scheduler envelopes originate inside the daemon; admission control
	// applies to external senders only.
	if msg.Channel != "scheduler" {
		if res := d.limiter.Check(msg.Channel + ":" + msg.From); !res.Allowed {
			wait := res.RetryAfter.Round(time.Second)
			if wait <= 0 {
				wait = time.Second
			}
			slog.Info("rate limited", "identity", msg.From, "channel", msg.Channel, "retry_after", wait)
			return fmt.Sprintf("You're sending messages too quickly. Please wait %s and try again.", wait)
		}

		decision, err := d.gate.Check(msg.From, msg.Channel)
		if err != nil {
			slog.Error("gate check failed", "identity", msg.From, "channel", msg.Channel, "error", err)
			return agent.FallbackApology
		}
		if !decision.Allowed {
			if decision.PairingCode != "" {
				return channels.BuildPairingReply(msg.Channel, decision.PairingCode)
			}
			return "Access denied."
		}
	}

	reply, err := d.loop.Process(ctx, msg)
	if err != nil {
		slog.Error("turn failed", "session", msg.SessionKey(), "error", err)
		return agent.FallbackApology
	}
	return reply
}
