package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// MaxPendingPageSize caps the admin queue page size regardless of configuration.
const MaxPendingPageSize = 200

// Config is the process configuration, read from the environment.
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	Submission SubmissionConfig
	Review     ReviewConfig
	Log        LogConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `env:"VOUCH_ADDR" env-default:":8080" env-description:"HTTP listen address"`
	ReadTimeout     time.Duration `env:"VOUCH_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `env:"VOUCH_WRITE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `env:"VOUCH_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// MaxUploadBytes bounds a whole multipart submission body.
	MaxUploadBytes int64 `env:"VOUCH_MAX_UPLOAD_BYTES" env-default:"52428800"`
}

type AuthConfig struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" env-default:"dev-secret-key-change-in-production" env-description:"HS256 signing key"`
	JWTIssuer     string        `env:"JWT_ISSUER" env-default:"vouch"`
	TokenTTL      time.Duration `env:"JWT_TOKEN_TTL" env-default:"15m"`
}

// DatabaseConfig selects the request store. An empty URL keeps requests in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" env-default:""`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" env-default:"30m"`
}

// RedisConfig selects the rate-limit counter store. An empty URL keeps counters in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL" env-default:""`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// KafkaConfig selects the status-change notifier. No brokers means log-only notifications.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic             string   `env:"KAFKA_TOPIC" env-default:"verification.status"`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS" env-default:"3"`
	ReplicationFactor int16    `env:"KAFKA_TOPIC_REPLICATION" env-default:"1"`
}

type StorageConfig struct {
	DocumentRoot string `env:"DOCUMENT_ROOT" env-default:"./data/documents"`
}

// SubmissionConfig holds the per-user submission budget.
type SubmissionConfig struct {
	RateLimit  int           `env:"SUBMISSION_RATE_LIMIT" env-default:"5"`
	RateWindow time.Duration `env:"SUBMISSION_RATE_WINDOW" env-default:"1h"`
}

type ReviewConfig struct {
	PendingPageSize int `env:"PENDING_PAGE_SIZE" env-default:"50"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSigningKey) == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must not be empty")
	}
	if c.Submission.RateLimit < 1 {
		return fmt.Errorf("SUBMISSION_RATE_LIMIT must be at least 1, got %d", c.Submission.RateLimit)
	}
	if c.Submission.RateWindow <= 0 {
		return fmt.Errorf("SUBMISSION_RATE_WINDOW must be positive, got %s", c.Submission.RateWindow)
	}
	if c.Review.PendingPageSize < 1 || c.Review.PendingPageSize > MaxPendingPageSize {
		return fmt.Errorf("PENDING_PAGE_SIZE must be between 1 and %d, got %d", MaxPendingPageSize, c.Review.PendingPageSize)
	}
	if c.Storage.DocumentRoot == "" {
		return fmt.Errorf("DOCUMENT_ROOT must not be empty")
	}
	// KAFKA_BROKERS="" or "a,,b" leaves empty elements behind.
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
	return nil
}

// Usage renders the environment variable reference.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}
