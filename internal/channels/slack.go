package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
)

// Slack caps messages at 4000 characters.
const slackMaxMessageLen = 4000

const slackSendTimeout = 30 * time.Second

// SlackChannel connects over Socket Mode. Direct messages always reach the
// agent; channel messages only via app mentions, so the bot stays quiet in
// group conversations it was not addressed in.
type SlackChannel struct {
	BaseChannel
	config    config.SlackConfig
	api       *slack.Client
	socket    *socketmode.Client
	botUserID string
}

// NewSlackChannel creates a new Slack channel.
func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	if strings.TrimSpace(c.config.BotToken) == "" || strings.TrimSpace(c.config.AppToken) == "" {
		return errors.New("slack channel enabled but bot or app token missing")
	}

	c.api = slack.New(
		c.config.BotToken,
		slack.OptionAppLevelToken(c.config.AppToken),
	)

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID
	slog.Info("slack connected", "bot_user", auth.UserID, "team", auth.Team)

	c.socket = socketmode.New(c.api)

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), slackSendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, msg); err != nil {
				slog.Error("slack send failed", "to", msg.To, "error", err)
			}
		}()
	})

	go c.consumeEvents(ctx)
	go func() {
		if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

func (c *SlackChannel) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				slog.Info("slack socket mode connected")
			case socketmode.EventTypeConnectionError:
				slog.Warn("slack socket mode connection error")
			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					c.socket.Ack(*evt.Request)
				}
				ev, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok || ev.Type != slackevents.CallbackEvent {
					continue
				}
				c.handleCallback(ev)
			}
		}
	}
}

// handleCallback turns Slack events into inbound bus messages. DMs arrive as
// message events; channel traffic only as app mentions. A mention in a
// channel fires both event types, restricting each to one context avoids
// publishing the message twice.
func (c *SlackChannel) handleCallback(ev slackevents.EventsAPIEvent) {
	switch in := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if in == nil || in.ChannelType != "im" {
			return
		}
		if in.BotID != "" || in.SubType != "" || in.User == c.botUserID || in.User == "" {
			return
		}
		c.publish(in.User, "", in.Text)
	case *slackevents.AppMentionEvent:
		if in == nil || in.User == c.botUserID || in.User == "" {
			return
		}
		c.publish(in.User, in.Channel, in.Text)
	}
}

func (c *SlackChannel) publish(user, groupID, text string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "<@"+c.botUserID+">", ""))
	if text == "" {
		return
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		From:    user,
		Channel: c.Name(),
		Text:    text,
		GroupID: groupID,
	})
}

// Send posts the reply, split to fit Slack's message-length limit. The
// target is a channel id for group replies or a user id for DMs; posting to
// a user id opens the DM conversation.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.api == nil {
		return errors.New("slack client not started")
	}
	for _, chunk := range ChunkText(msg.Text, slackMaxMessageLen) {
		if err := c.postWithRetry(ctx, msg.To, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *SlackChannel) postWithRetry(ctx context.Context, target, text string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, _, err = c.api.PostMessageContext(ctx, target, slack.MsgOptionText(text, false))
		if err == nil {
			return nil
		}
		var rle *slack.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rle.RetryAfter):
		}
	}
	return err
}
