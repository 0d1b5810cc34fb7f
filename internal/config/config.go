package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Audit   AuditConfig
	Scanner ScannerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers       []string
	RedeemedTopic string
	Enabled       bool
}

type AuditConfig struct {
	// SQLitePath is the scan audit database. ":memory:" keeps it ephemeral.
	SQLitePath string
}

type ScannerConfig struct {
	// BatchSize is the store's id-filter limit per membership query.
	BatchSize int
	// ReadRetries and ReadBackoff bound retry of transient failures during
	// redemption validation reads. The conditional commit is never retried.
	ReadRetries int
	ReadBackoff time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Kafka: KafkaConfig{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			RedeemedTopic: getEnv("KAFKA_TOPIC_REDEEMED", "ticket-redeemed"),
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
		},
		Audit: AuditConfig{
			SQLitePath: getEnv("AUDIT_SQLITE_PATH", "file:checkin-audit.db"),
		},
		Scanner: ScannerConfig{
			BatchSize:   getEnvInt("SCANNER_BATCH_SIZE", 10),
			ReadRetries: getEnvInt("SCANNER_READ_RETRIES", 2),
			ReadBackoff: time.Duration(getEnvInt("SCANNER_READ_BACKOFF_MS", 150)) * time.Millisecond,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
