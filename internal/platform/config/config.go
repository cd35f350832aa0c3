package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	strutil "claimreg/pkg/platform/strings"
)

// Sequence source names accepted by CLAIMREG_SEQUENCE_SOURCE.
const (
	SequenceSourceTicker = "ticker"
	SequenceSourceRedis  = "redis"
)

// Server captures process configuration.
type Server struct {
	Addr     string
	LogLevel string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	SequenceSource         string
	BlockInterval          time.Duration
	SequenceKey            string
	TransferSequencePolicy string

	TxTimeout         time.Duration
	RelayPollInterval time.Duration
	ShutdownTimeout   time.Duration

	RateLimit RateLimitConfig
}

// RateLimitConfig bounds claim mutations per account. Zero requests disables
// limiting.
type RateLimitConfig struct {
	MutationsPerWindow int
	Window             time.Duration
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures event delivery. No brokers disables the relay.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// UsesPostgres reports whether claims are persisted in Postgres.
func (s Server) UsesPostgres() bool {
	return s.DatabaseURL != ""
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getEnv("CLAIMREG_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnv("JWT_ISSUER", "claimreg"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "claimreg"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:           strutil.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:             getEnv("KAFKA_TOPIC", "claimreg.claims"),
			Partitions:        3,
			ReplicationFactor: 1,
		},
		SequenceSource:         getEnv("CLAIMREG_SEQUENCE_SOURCE", SequenceSourceTicker),
		SequenceKey:            getEnv("CLAIMREG_SEQUENCE_KEY", "claimreg:height"),
		TransferSequencePolicy: os.Getenv("CLAIMREG_TRANSFER_SEQUENCE_POLICY"),
	}

	var err error
	if cfg.BlockInterval, err = getDuration("CLAIMREG_BLOCK_INTERVAL", 6*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.TxTimeout, err = getDuration("CLAIMREG_TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.RelayPollInterval, err = getDuration("CLAIMREG_RELAY_POLL_INTERVAL", 2*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("CLAIMREG_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Server{}, err
	}

	if cfg.RateLimit.Window, err = getDuration("CLAIMREG_RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return Server{}, err
	}
	if raw := os.Getenv("CLAIMREG_RATE_LIMIT"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			return Server{}, fmt.Errorf("CLAIMREG_RATE_LIMIT: invalid count %q", raw)
		}
		cfg.RateLimit.MutationsPerWindow = n
	} else {
		cfg.RateLimit.MutationsPerWindow = 60
	}

	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	switch cfg.SequenceSource {
	case SequenceSourceTicker:
	case SequenceSourceRedis:
		if cfg.Redis.URL == "" {
			return Server{}, fmt.Errorf("CLAIMREG_SEQUENCE_SOURCE=redis requires REDIS_URL")
		}
	default:
		return Server{}, fmt.Errorf("unknown CLAIMREG_SEQUENCE_SOURCE %q", cfg.SequenceSource)
	}
	if len(cfg.Kafka.Brokers) > 0 && !cfg.UsesPostgres() {
		return Server{}, fmt.Errorf("KAFKA_BROKERS requires DATABASE_URL for the outbox")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return d, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
