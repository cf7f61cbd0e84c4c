package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-core/pkg/db"
	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/presence"
	"github.com/mahaj/chat-core/pkg/ratelimit"
	"github.com/mahaj/chat-core/pkg/registry"
	"github.com/mahaj/chat-core/pkg/snowflake"
	"github.com/mahaj/chat-core/pkg/store"
)

// API bundles the service's collaborators. It shares the presence, rate
// limiting and relay machinery with the gateways; only the transport is
// HTTP instead of websockets.
type API struct {
	cfg         Config
	session     *db.Session
	coordinator *presence.Coordinator
	limiter     *ratelimit.Limiter
	snowflake   *snowflake.Node
	validate    *validator.Validate
	producer    *kafka.Writer
}

func (a *API) publishMessage(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(model.RelayEnvelope{
		Origin:  "api",
		Kind:    model.RelayMessage,
		Message: &msg,
	})
	if err != nil {
		return err
	}
	return a.producer.WriteMessages(ctx, kafka.Message{Value: payload, Time: time.Now()})
}

func main() {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}

	session, err := db.NewSession(strings.Split(cfg.ScyllaHosts, ","), cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	st := store.New(cfg.RedisAddr, cfg.StoreTimeout)
	defer st.Close()

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	producer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
		Topic:    cfg.KafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer producer.Close()

	a := &API{
		cfg:     cfg,
		session: session,
		// the API holds no live connections; its registry stays empty
		coordinator: presence.NewCoordinator(registry.New(), st, session, cfg.PresenceTTL),
		limiter:     ratelimit.New(st),
		snowflake:   node,
		validate:    validator.New(),
		producer:    producer,
	}

	mux := http.NewServeMux()

	// Public endpoint
	mux.Handle("POST /login", CORSMiddleware(http.HandlerFunc(a.LoginHandler)))

	// Protected endpoints
	mux.Handle("GET /presence/{user}", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.GetPresenceHandler))))
	mux.Handle("POST /presence", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.UpdatePresenceHandler))))
	mux.Handle("POST /presence/bulk", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.BulkPresenceHandler))))
	mux.Handle("POST /presence/heartbeat", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.HeartbeatHandler))))
	mux.Handle("POST /messages", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.SendMessageHandler))))
	mux.Handle("GET /messages", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.HistoryHandler))))
	mux.Handle("GET /conversations", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.ConversationsHandler))))
	mux.Handle("POST /conversations/read", CORSMiddleware(AuthMiddleware(http.HandlerFunc(a.ReadHandler))))

	log.Printf("API Service Starting on %s...", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatal(err)
	}
}
