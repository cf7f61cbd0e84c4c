package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-core/pkg/db"
	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/presence"
	"github.com/mahaj/chat-core/pkg/ratelimit"
	"github.com/mahaj/chat-core/pkg/registry"
	"github.com/mahaj/chat-core/pkg/router"
	"github.com/mahaj/chat-core/pkg/snowflake"
	"github.com/mahaj/chat-core/pkg/store"
)

// relayPublisher fans accepted messages out to the other gateway processes
// and to the persistence consumer.
type relayPublisher interface {
	Publish(ctx context.Context, env model.RelayEnvelope) error
}

type kafkaRelay struct {
	writer *kafka.Writer
}

func (k *kafkaRelay) Publish(ctx context.Context, env model.RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Value: payload,
		Time:  time.Now(),
	})
}

func (k *kafkaRelay) Close() error {
	return k.writer.Close()
}

// Gateway wires one process's share of the core together: the local
// connection registry, the presence coordinator, the router and the rate
// limiter, plus the relay in and out of this process.
type Gateway struct {
	cfg         Config
	origin      string // unique per process; relayed messages carry it
	registry    *registry.Registry
	coordinator *presence.Coordinator
	router      *router.Router
	limiter     *ratelimit.Limiter
	snowflake   *snowflake.Node
	validate    *validator.Validate
	relay       relayPublisher
	store       *store.Store
}

func NewGateway(cfg Config, session *db.Session) (*Gateway, error) {
	st := store.New(cfg.RedisAddr, cfg.StoreTimeout)
	reg := registry.New()

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Gateway{
		cfg:         cfg,
		origin:      uuid.NewString(),
		registry:    reg,
		coordinator: presence.NewCoordinator(reg, st, session, cfg.PresenceTTL),
		router:      router.New(reg),
		limiter:     ratelimit.New(st),
		snowflake:   node,
		validate:    validator.New(),
		relay:       &kafkaRelay{writer: writer},
		store:       st,
	}, nil
}

// Run starts the relay consumer and the presence subscription, blocking
// until ctx is cancelled.
func (gw *Gateway) Run(ctx context.Context) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(gw.cfg.KafkaBrokers, ","),
		Topic:   gw.cfg.KafkaTopic,
		// Unique group per gateway so every process sees every message.
		GroupID:     "gateway-" + gw.origin,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})
	sub := gw.store.Subscribe(ctx, presence.Channel)

	go gw.presenceLoop(sub)
	gw.relayLoop(ctx, reader)
}

// relayLoop routes messages published by other gateways to this process's
// local connections. Messages this gateway published are skipped; they were
// delivered locally at send time.
func (gw *Gateway) relayLoop(ctx context.Context, reader *kafka.Reader) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Gateway relay consumer error: %v", err)
			return
		}

		var env model.RelayEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Printf("Failed to unmarshal relay envelope: %v", err)
			continue
		}
		gw.handleRelay(env)
	}
}

// handleRelay applies one relayed envelope to this process. Envelopes this
// gateway published are skipped; they were delivered locally at send time.
func (gw *Gateway) handleRelay(env model.RelayEnvelope) {
	if env.Origin == gw.origin {
		return
	}
	switch env.Kind {
	case model.RelayMessage:
		if env.Message != nil {
			gw.router.Route(*env.Message)
		}
	case model.RelayTyping:
		if env.Typing != nil {
			gw.deliverTyping(*env.Typing)
		}
	}
}

// presenceLoop forwards presence changes published by any process to every
// local session.
func (gw *Gateway) presenceLoop(sub *redis.PubSub) {
	defer sub.Close()
	for msg := range sub.Channel() {
		var change model.PresenceChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			log.Printf("Failed to unmarshal presence change: %v", err)
			continue
		}
		payload := model.Event{Type: model.EventPresence, Presence: &change}.Encode()
		for _, conn := range gw.registry.Connections() {
			conn.Send(payload)
		}
	}
}

func (gw *Gateway) deliverTyping(ev model.TypingEvent) {
	payload := model.Event{Type: model.EventTyping, Typing: &ev}.Encode()
	for _, conn := range gw.registry.Resolve(ev.RecipientID) {
		conn.Send(payload)
	}
}

func (gw *Gateway) publishMessage(msg model.Message) {
	env := model.RelayEnvelope{Origin: gw.origin, Kind: model.RelayMessage, Message: &msg}
	if err := gw.relay.Publish(context.Background(), env); err != nil {
		log.Printf("Failed to publish message %d: %v", msg.ID, err)
	}
}

func (gw *Gateway) publishTyping(ev model.TypingEvent) {
	env := model.RelayEnvelope{Origin: gw.origin, Kind: model.RelayTyping, Typing: &ev}
	if err := gw.relay.Publish(context.Background(), env); err != nil {
		log.Printf("Failed to publish typing event: %v", err)
	}
}
