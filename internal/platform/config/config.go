package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects every tunable the server reads at boot. Built from
// environment variables so main stays lean.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	Storage    Storage
	Enrichment Enrichment
	Reconcile  Reconcile
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres holds the record-store connection string. Empty means the server
// runs on in-memory stores (dev and tests).
type Postgres struct {
	URL string
}

// Redis configures the idempotency-marker client. Empty URL disables it.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the finalize-event consumer and the audit relay producer.
// No brokers means events flow over the in-process emitter only.
type Kafka struct {
	Brokers        []string
	Group          string
	FinalizedTopic string
	AuditTopic     string
}

// Storage bounds uploads before any network call.
type Storage struct {
	MaxUploadBytes int64
}

// Enrichment tunes the bounded retry for the record-not-yet-written race.
type Enrichment struct {
	MatchAttempts int
	MatchBackoff  time.Duration
}

// Reconcile tunes the divergence-repair job.
type Reconcile struct {
	Interval time.Duration
	Window   time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envStr("STORECRED_ADDR", ":8080"),
			JWTSigningKey: envStr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:        envList("KAFKA_BROKERS"),
			Group:          envStr("KAFKA_GROUP", "storecred-enrichment"),
			FinalizedTopic: envStr("KAFKA_FINALIZED_TOPIC", "storage.object-finalized"),
			AuditTopic:     envStr("KAFKA_AUDIT_TOPIC", "audit.events"),
		},
		Storage: Storage{
			MaxUploadBytes: envInt64("STORAGE_MAX_UPLOAD_BYTES", 10<<20),
		},
		Enrichment: Enrichment{
			MatchAttempts: envInt("ENRICHMENT_MATCH_ATTEMPTS", 5),
			MatchBackoff:  envDuration("ENRICHMENT_MATCH_BACKOFF", 200*time.Millisecond),
		},
		Reconcile: Reconcile{
			Interval: envDuration("RECONCILE_INTERVAL", 5*time.Minute),
			Window:   envDuration("RECONCILE_WINDOW", 24*time.Hour),
		},
	}
}

func envStr(key, fallback string) string {
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

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
