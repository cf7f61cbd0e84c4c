package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	env "github.com/Netflix/go-env"

	"github.com/mahaj/chat-core/pkg/db"
)

type Config struct {
	KafkaBrokers string `env:"KAFKA_BROKERS,default=localhost:19092"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=chat-messages"`
	ScyllaHosts  string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	Keyspace     string `env:"SCYLLA_KEYSPACE,default=chat"`
	GroupID      string `env:"KAFKA_GROUP_ID,default=messaging-service-group"`
}

func main() {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	scyllaHosts := strings.Split(cfg.ScyllaHosts, ",")

	// Note: In production, schema creation should be handled by migration
	// tools. For this MVP we create keyspace/tables if missing, which needs
	// a session without a keyspace first.
	sysSession, err := db.NewSession(scyllaHosts, "system")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB system keyspace: %v", err)
	}

	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}
	sysSession.Close()

	session, err := db.NewSession(scyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB chat keyspace: %v", err)
	}
	defer session.Close()

	err = session.Query(`CREATE TABLE IF NOT EXISTS messages (
		chat_id text,
		id bigint,
		sender_id text,
		recipient_id text,
		text text,
		created_at timestamp,
		PRIMARY KEY (chat_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create messages table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		chat_id text,
		other_user_id text,
		last_message_id bigint,
		last_updated timestamp,
		PRIMARY KEY (user_id, chat_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create user_conversations table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		chat_id text,
		unread_count counter,
		PRIMARY KEY (user_id, chat_id)
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create conversation_counters table: %v", err)
	}

	err = session.Query(`CREATE TABLE IF NOT EXISTS user_presence (
		user_id text PRIMARY KEY,
		is_online boolean,
		last_active timestamp
	)`).Exec()
	if err != nil {
		log.Fatalf("Failed to create user_presence table: %v", err)
	}

	consumer := NewConsumer(brokers, cfg.KafkaTopic, cfg.GroupID, session)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Starting Kafka Consumer...")
	consumer.Consume(ctx)
}
