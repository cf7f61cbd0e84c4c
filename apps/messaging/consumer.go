package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-core/pkg/model"
)

// persister is the durable-storage collaborator: message history, chat
// pointers and activity timestamps.
type persister interface {
	SaveMessage(m model.Message) error
	TouchConversation(m model.Message) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

type Consumer struct {
	reader *kafka.Reader
	db     persister
}

func NewConsumer(brokers []string, topic string, groupID string, db persister) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{reader: r, db: db}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading message: %v. Retrying in 1s...", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var env model.RelayEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Printf("Failed to unmarshal relay envelope: %v", err)
			continue
		}

		c.handle(ctx, env)
	}
}

// handle persists one relayed envelope. Typing indicators are ephemeral and
// skipped; a message is stored, pinned as its chat's last message and
// counted as sender activity, each step best-effort.
func (c *Consumer) handle(ctx context.Context, env model.RelayEnvelope) {
	if env.Kind != model.RelayMessage || env.Message == nil {
		return
	}
	msg := *env.Message

	if err := c.db.SaveMessage(msg); err != nil {
		log.Printf("Failed to save message %d: %v", msg.ID, err)
	} else {
		log.Printf("Message saved: %d", msg.ID)
	}

	if err := c.db.TouchConversation(msg); err != nil {
		log.Printf("Failed to update conversation for chat %s: %v", msg.ChatID, err)
	}

	if err := c.db.TouchLastActive(ctx, msg.SenderID, msg.CreatedAt); err != nil {
		log.Printf("Failed to update last active for %s: %v", msg.SenderID, err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
