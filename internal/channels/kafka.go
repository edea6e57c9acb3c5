package channels

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
)

const kafkaSendTimeout = 30 * time.Second

// kafkaOutbound is the JSON envelope written to the outbound topic.
type kafkaOutbound struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaChannel bridges the agent to Kafka topics so other systems can talk
// to it programmatically. Inbound messages are JSON envelopes on one topic,
// replies are written to another keyed by recipient.
type KafkaChannel struct {
	BaseChannel
	config config.KafkaConfig
	reader *kafka.Reader
	writer *kafka.Writer
}

// NewKafkaChannel creates a new Kafka channel.
func NewKafkaChannel(cfg config.KafkaConfig, messageBus *bus.MessageBus) *KafkaChannel {
	return &KafkaChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	brokers := strings.Split(c.config.Brokers, ",")

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  c.config.ConsumerGroup,
		Topic:    c.config.InboundTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        c.config.OutboundTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), kafkaSendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, msg); err != nil {
				slog.Error("kafka send failed", "to", msg.To, "error", err)
			}
		}()
	})

	go c.consume(ctx)
	slog.Info("kafka channel started",
		"brokers", c.config.Brokers,
		"inbound_topic", c.config.InboundTopic,
		"outbound_topic", c.config.OutboundTopic)
	return nil
}

func (c *KafkaChannel) Stop() error {
	var firstErr error
	if c.reader != nil {
		if err := c.reader.Close(); err != nil {
			firstErr = err
		}
	}
	if c.writer != nil {
		if err := c.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *KafkaChannel) consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("kafka read failed", "topic", c.config.InboundTopic, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handleRecord(m)
	}
}

// handleRecord parses one inbound envelope. Malformed records are logged
// and skipped so one bad producer cannot wedge the topic.
func (c *KafkaChannel) handleRecord(m kafka.Message) {
	var msg bus.InboundMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		slog.Warn("kafka inbound not valid JSON",
			"topic", c.config.InboundTopic,
			"offset", m.Offset,
			"error", err)
		return
	}
	if msg.From == "" && len(m.Key) > 0 {
		msg.From = string(m.Key)
	}
	if msg.From == "" || strings.TrimSpace(msg.Text) == "" {
		slog.Warn("kafka inbound missing from or text", "offset", m.Offset)
		return
	}
	msg.Channel = c.Name()
	c.Bus.PublishInbound(&msg)
}

// Send writes the reply to the outbound topic. Kafka consumers handle
// arbitrarily large values, so replies are not chunked.
func (c *KafkaChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.writer == nil {
		return errors.New("kafka writer not started")
	}
	value, err := json.Marshal(kafkaOutbound{
		ID:        uuid.NewString(),
		To:        msg.To,
		Text:      msg.Text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Time:  time.Now(),
	})
}
