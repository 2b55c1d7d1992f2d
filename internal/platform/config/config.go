package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"aidchain/pkg/domain"
)

// Store backends selectable with AIDCHAIN_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config is the process configuration, loaded from AIDCHAIN_* variables.
type Config struct {
	Addr          string        `env:"AIDCHAIN_ADDR" envDefault:":8080"`
	Store         string        `env:"AIDCHAIN_STORE" envDefault:"memory"`
	DatabaseURL   string        `env:"AIDCHAIN_DATABASE_URL"`
	SQLitePath    string        `env:"AIDCHAIN_SQLITE_PATH" envDefault:"aidchain.db"`
	JWTSigningKey string        `env:"AIDCHAIN_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"AIDCHAIN_JWT_ISSUER" envDefault:"aidchain"`
	JWTAudience   string        `env:"AIDCHAIN_JWT_AUDIENCE" envDefault:"aidchain-api"`
	LogLevel      string        `env:"AIDCHAIN_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint  string        `env:"AIDCHAIN_OTEL_ENDPOINT"`
	RelayInterval time.Duration `env:"AIDCHAIN_RELAY_INTERVAL" envDefault:"1s"`

	Ledger      LedgerConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
}

// LedgerConfig holds the funding rules and the initial authority.
type LedgerConfig struct {
	AuthorityHex    string `env:"AIDCHAIN_AUTHORITY"`
	ThresholdWei    string `env:"AIDCHAIN_THRESHOLD_WEI" envDefault:"320000000000000000"`
	MinDonationWei  string `env:"AIDCHAIN_MIN_DONATION_WEI" envDefault:"5000000000000000"`
	MaxUnitsPerCall int    `env:"AIDCHAIN_MAX_UNITS_PER_CALL" envDefault:"5"`

	Authority   common.Address `env:"-"`
	Threshold   *big.Int       `env:"-"`
	MinDonation *big.Int       `env:"-"`
}

// RedisConfig configures the optional Redis client. Empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"AIDCHAIN_REDIS_URL"`
	PoolSize     int           `env:"AIDCHAIN_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"AIDCHAIN_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"AIDCHAIN_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"AIDCHAIN_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"AIDCHAIN_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the outbox sink. No brokers means events are logged instead.
type KafkaConfig struct {
	Brokers []string `env:"AIDCHAIN_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"AIDCHAIN_KAFKA_TOPIC" envDefault:"aidchain.events"`
}

// IdempotencyConfig bounds how long contribution keys are remembered.
type IdempotencyConfig struct {
	TTL time.Duration `env:"AIDCHAIN_IDEMPOTENCY_TTL" envDefault:"24h"`
}

// RateLimitConfig sets per-client request budgets. Zero disables a class.
type RateLimitConfig struct {
	ReadsPerWindow  int           `env:"AIDCHAIN_RATE_LIMIT_READS" envDefault:"600"`
	WritesPerWindow int           `env:"AIDCHAIN_RATE_LIMIT_WRITES" envDefault:"60"`
	Window          time.Duration `env:"AIDCHAIN_RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("AIDCHAIN_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if strings.TrimSpace(c.JWTSigningKey) == "" {
		return fmt.Errorf("AIDCHAIN_JWT_SIGNING_KEY is required")
	}

	authority, err := domain.ParseAddress(c.Ledger.AuthorityHex)
	if err != nil {
		return fmt.Errorf("AIDCHAIN_AUTHORITY: %w", err)
	}
	c.Ledger.Authority = authority

	if c.Ledger.Threshold, err = domain.ParseWei(c.Ledger.ThresholdWei); err != nil {
		return fmt.Errorf("AIDCHAIN_THRESHOLD_WEI: %w", err)
	}
	if c.Ledger.MinDonation, err = domain.ParseWei(c.Ledger.MinDonationWei); err != nil {
		return fmt.Errorf("AIDCHAIN_MIN_DONATION_WEI: %w", err)
	}
	if c.Ledger.MaxUnitsPerCall <= 0 {
		return fmt.Errorf("AIDCHAIN_MAX_UNITS_PER_CALL must be positive")
	}
	if c.RateLimit.ReadsPerWindow < 0 || c.RateLimit.WritesPerWindow < 0 {
		return fmt.Errorf("AIDCHAIN_RATE_LIMIT_READS and AIDCHAIN_RATE_LIMIT_WRITES must not be negative")
	}
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
	if c.RelayInterval <= 0 {
		return fmt.Errorf("AIDCHAIN_RELAY_INTERVAL must be positive")
	}
	return nil
}
