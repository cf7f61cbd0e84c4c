package main

import "time"

type Config struct {
	ListenAddr    string        `env:"API_ADDR,default=:8081"`
	RedisAddr     string        `env:"REDIS_ADDR,default=localhost:6379"`
	KafkaBrokers  string        `env:"KAFKA_BROKERS,default=localhost:19092"`
	KafkaTopic    string        `env:"KAFKA_TOPIC,default=chat-messages"`
	ScyllaHosts   string        `env:"SCYLLA_HOSTS,default=localhost:9042"`
	Keyspace      string        `env:"SCYLLA_KEYSPACE,default=chat"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=50ms"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL,default=300s"`
	MessageLimit  int64         `env:"MESSAGE_RATE_LIMIT,default=10"`
	MessageWindow time.Duration `env:"MESSAGE_RATE_WINDOW,default=10s"`
	LoginLimit    int64         `env:"LOGIN_RATE_LIMIT,default=5"`
	LoginWindow   time.Duration `env:"LOGIN_RATE_WINDOW,default=15m"`
	HistoryLimit  int           `env:"HISTORY_LIMIT,default=100"`
	SnowflakeNode int64         `env:"SNOWFLAKE_NODE,default=2"`
}
