package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures service level configuration. Values come from the
// environment so main stays lean; unset values fall back to dev defaults.
type Config struct {
	Addr     string
	LogLevel string

	// PostgresDSN selects the durable stores. Empty means in-memory stores,
	// which is the dev/test mode.
	PostgresDSN string

	// JWTSigningKey verifies API bearer tokens.
	JWTSigningKey string

	Redis RedisConfig
	Kafka KafkaConfig

	// SourceQueryTimeout bounds the parallel signal-source fan-out for a
	// single evaluation run.
	SourceQueryTimeout time.Duration

	// SubjectLockTTL bounds how long a per-subject evaluation lock is held
	// if the holder dies without releasing it.
	SubjectLockTTL time.Duration
}

// RedisConfig holds connection settings for the per-subject lock.
// An empty URL disables Redis; evaluation then runs without locking.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the compound-event publisher.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("CARESIGNAL_ADDR", ":8080"),
		LogLevel:           envOr("CARESIGNAL_LOG_LEVEL", "info"),
		PostgresDSN:        os.Getenv("CARESIGNAL_POSTGRES_DSN"),
		JWTSigningKey:      envOr("CARESIGNAL_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SourceQueryTimeout: envDuration("CARESIGNAL_SOURCE_TIMEOUT", 5*time.Second),
		SubjectLockTTL:     envDuration("CARESIGNAL_SUBJECT_LOCK_TTL", 30*time.Second),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("CARESIGNAL_REDIS_URL"),
		PoolSize:     envInt("CARESIGNAL_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("CARESIGNAL_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("CARESIGNAL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("CARESIGNAL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("CARESIGNAL_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Enabled: os.Getenv("CARESIGNAL_KAFKA_ENABLED") == "true",
		Brokers: splitNonEmpty(envOr("CARESIGNAL_KAFKA_BROKERS", "localhost:9092")),
		Topic:   envOr("CARESIGNAL_KAFKA_TOPIC", "compound-events"),
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
