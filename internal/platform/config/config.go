package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string

	DBDriver    string
	DatabaseDSN string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ProposalCacheTTL time.Duration

	JWTSecret string

	EventBus          string
	EventBusBuffer    int
	EventStreamMaxLen int64

	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	EnforceProposalDuration bool
	MinProposalDuration     time.Duration
	MaxProposalDuration     time.Duration
}

// Load reads process configuration from the environment. A .env file in the
// working directory is applied first; it never overrides variables that are
// already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "govledger"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	}
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		driver = "postgres"
	}

	bus := strings.ToLower(strings.TrimSpace(os.Getenv("EVENT_BUS")))
	if bus == "" {
		bus = "memory"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,

		DBDriver:    driver,
		DatabaseDSN: dsn,

		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          envInt("REDIS_DB", 0),
		ProposalCacheTTL: envDuration("PROPOSAL_CACHE_TTL", 30*time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),

		EventBus:          bus,
		EventBusBuffer:    envInt("EVENT_BUS_BUFFER", 128),
		EventStreamMaxLen: int64(envInt("EVENT_STREAM_MAXLEN", 10000)),

		IdempotencyTTL:     envDuration("IDEMPOTENCY_TTL", 7*24*time.Hour),
		OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),

		EnforceProposalDuration: envBool("ENFORCE_PROPOSAL_DURATION", true),
		MinProposalDuration:     envDuration("MIN_PROPOSAL_DURATION", time.Hour),
		MaxProposalDuration:     envDuration("MAX_PROPOSAL_DURATION", 90*24*time.Hour),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// envDuration accepts Go duration strings ("90s", "36h") or a bare number of
// seconds.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if value, err := time.ParseDuration(raw); err == nil && value > 0 {
		return value
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
