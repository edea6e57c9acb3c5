package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
)

// WhatsApp renders very long messages poorly, so replies are split well
// below the protocol limit.
const whatsappMaxMessageLen = 3500

const whatsappSendTimeout = 30 * time.Second

// WhatsAppChannel connects as a linked device over the multidevice
// protocol. Session keys live in a dedicated sqlite database under the
// state directory; first start prints a QR code to pair.
type WhatsAppChannel struct {
	BaseChannel
	config    config.WhatsAppConfig
	stateDir  string
	container *sqlstore.Container
	client    *whatsmeow.Client
}

// NewWhatsAppChannel creates a new WhatsApp channel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, stateDir string, messageBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
		stateDir:    stateDir,
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	dbPath := filepath.Join(c.stateDir, "whatsapp.db")
	dsn := "file:" + dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return fmt.Errorf("open whatsapp session store: %w", err)
	}
	c.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load whatsapp device: %w", err)
	}
	c.client = whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "WARN", true))
	c.client.AddEventHandler(c.handleEvent)

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), whatsappSendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, msg); err != nil {
				slog.Error("whatsapp send failed", "to", msg.To, "error", err)
			}
		}()
	})

	if c.client.Store.ID == nil {
		// Not paired yet. The QR channel must be requested before the
		// first connect.
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("request whatsapp qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
		go c.watchQR(qrChan)
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	return nil
}

func (c *WhatsAppChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

func (c *WhatsAppChannel) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	qrPath := filepath.Join(c.stateDir, "whatsapp-qr.png")
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, qrPath); err != nil {
				slog.Error("write whatsapp qr code", "error", err)
				continue
			}
			slog.Info("whatsapp pairing required, scan the QR code", "file", qrPath)
		case "success":
			slog.Info("whatsapp paired")
		default:
			slog.Warn("whatsapp qr event", "event", evt.Event)
		}
	}
}

func (c *WhatsAppChannel) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessage(evt)
	case *events.Connected:
		slog.Info("whatsapp connected")
	case *events.Disconnected:
		slog.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		slog.Warn("whatsapp logged out, delete the session database and pair again")
	}
}

// handleMessage forwards direct messages unconditionally. Group messages
// only reach the agent when the bot is mentioned, mirroring how the Slack
// adapter treats channels.
func (c *WhatsAppChannel) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	text := extractText(evt.Message)
	if text == "" {
		return
	}

	groupID := ""
	if evt.Info.IsGroup {
		if !c.mentionsSelf(evt.Message) {
			return
		}
		groupID = evt.Info.Chat.String()
	}

	c.Bus.PublishInbound(&bus.InboundMessage{
		From:    evt.Info.Sender.User,
		Channel: c.Name(),
		Text:    text,
		GroupID: groupID,
	})
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(msg.GetExtendedTextMessage().GetText())
}

func (c *WhatsAppChannel) mentionsSelf(msg *waE2E.Message) bool {
	self := c.client.Store.ID
	if self == nil {
		return false
	}
	for _, raw := range msg.GetExtendedTextMessage().GetContextInfo().GetMentionedJID() {
		jid, err := types.ParseJID(raw)
		if err == nil && jid.User == self.User {
			return true
		}
	}
	return false
}

// Send delivers the reply to a user or group. Group targets arrive as full
// JIDs; bare user identifiers get the default user server appended.
func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return errors.New("whatsapp client not started")
	}
	jid, err := targetJID(msg.To)
	if err != nil {
		return err
	}
	for _, chunk := range ChunkText(msg.Text, whatsappMaxMessageLen) {
		_, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
			Conversation: proto.String(chunk),
		})
		if err != nil {
			return fmt.Errorf("send whatsapp message: %w", err)
		}
	}
	return nil
}

func targetJID(to string) (types.JID, error) {
	if strings.ContainsRune(to, '@') {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("parse whatsapp target %q: %w", to, err)
		}
		return jid, nil
	}
	if to == "" {
		return types.EmptyJID, errors.New("empty whatsapp target")
	}
	return types.NewJID(to, types.DefaultUserServer), nil
}
