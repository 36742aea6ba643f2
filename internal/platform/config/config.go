package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	RulesPath     string

	Cache    CacheConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Consumer ConsumerConfig
}

// CacheConfig controls context store retention.
type CacheConfig struct {
	// DefaultTTL applies to entity types without an override.
	DefaultTTL time.Duration
	// TTLOverrides maps entity type names to their retention.
	TTLOverrides map[string]time.Duration
}

// RedisConfig controls the optional shared cache tier.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig controls the optional Postgres-backed record store.
// An empty DSN selects the seeded in-memory store.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig controls the optional Kafka broadcast transport.
// Empty brokers select the in-process broadcast bus.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ConsumerConfig controls the consumer adapter contract defaults.
type ConsumerConfig struct {
	// WaitTimeout bounds how long a consumer waits for governor data before
	// falling back to a direct fetch.
	WaitTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CASEGOV_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		RulesPath:     os.Getenv("CASEGOV_RULES_PATH"),
		Cache: CacheConfig{
			DefaultTTL:   envDuration("CASEGOV_CACHE_TTL", 30*time.Second),
			TTLOverrides: envTTLOverrides("CASEGOV_CACHE_TTL_OVERRIDES"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CASEGOV_REDIS_URL"),
			PoolSize:     envInt("CASEGOV_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CASEGOV_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("CASEGOV_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CASEGOV_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CASEGOV_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("CASEGOV_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("CASEGOV_KAFKA_BROKERS"),
			Topic:   envDefault("CASEGOV_KAFKA_TOPIC", "casegov.page-data"),
		},
		Consumer: ConsumerConfig{
			WaitTimeout: envDuration("CASEGOV_CONSUMER_WAIT", 1500*time.Millisecond),
		},
	}
}

func envDefault(key, fallback string) string {
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

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envTTLOverrides parses "case=10s,account=1m" style overrides.
func envTTLOverrides(key string) map[string]time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	overrides := make(map[string]time.Duration)
	for _, pair := range strings.Split(v, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			overrides[name] = d
		}
	}
	return overrides
}
