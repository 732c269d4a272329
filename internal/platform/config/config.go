// Package config loads process configuration from an optional .env file and
// the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	liststr "issuance/pkg/platform/strings"
)

// CSD systems with verification endpoints.
const (
	CSDClearstream = "CLEARSTREAM"
	CSDEuroclear   = "EUROCLEAR"
	CSDDTCC        = "DTCC"
	CSDDPOGlobal   = "DPO_GLOBAL"
)

// CSDSystems lists every system read from CSD_<SYSTEM>_* variables.
var CSDSystems = []string{CSDClearstream, CSDEuroclear, CSDDTCC, CSDDPOGlobal}

// Config holds application configuration.
type Config struct {
	Env       string
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Lifecycle LifecycleConfig
	Schedules Schedules
	RateLimit RateLimitConfig
	// Issuer is the token contract gateway. An empty endpoint selects the
	// logging issuer.
	Issuer EndpointConfig
	// TradeRepository is where derivative reports are filed. An empty
	// endpoint selects the logging repository.
	TradeRepository EndpointConfig
	// BlockedJurisdictions are refused by the default compliance oracle.
	BlockedJurisdictions []string
	// CSD maps a system name to its credentials. Systems without an endpoint
	// are absent.
	CSD map[string]CSDCredentials
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	// RoleBindings is "principal=role,role;principal=role".
	RoleBindings string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	EventsTopicPrefix string
	IngestTopic       string
	ConsumerGroup     string
}

// LifecycleConfig holds the engine policy knobs.
type LifecycleConfig struct {
	RequestTTL time.Duration
	// MarkerRollbackOnFailure releases a settlement marker when the downstream
	// transfer fails instead of keeping it and emitting a divergence event.
	MarkerRollbackOnFailure bool
	// MarkBeforeValidate claims a corporate-action reference before its
	// payload is validated.
	MarkBeforeValidate bool
	ExecutorWorkers    int
	ReconcileBatchSize int
}

// RateLimitConfig caps authenticated requests per principal over a sliding
// minute. Reads and writes are counted separately.
type RateLimitConfig struct {
	Disabled        bool
	ReadsPerMinute  int
	WritesPerMinute int
}

type Schedules struct {
	Reconcile    string
	RequestSweep string
	OutboxRelay  string
}

// EndpointConfig points at an HTTP collaborator: the unit issuer gateway or
// the trade repository.
type EndpointConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type CSDCredentials struct {
	Endpoint string
	APIKey   string
}

// DefaultConfig returns configuration suitable for local development: every
// backend in memory.
func DefaultConfig() Config {
	return Config{
		Env: "development",
		Server: Server{
			Addr:          ":8080",
			JWTSigningKey: "dev-secret-key-change-in-production",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			EventsTopicPrefix: "issuance.events",
			IngestTopic:       "issuance.ingest",
			ConsumerGroup:     "issuance-engine",
		},
		Lifecycle: LifecycleConfig{
			RequestTTL:         5 * time.Minute,
			ExecutorWorkers:    4,
			ReconcileBatchSize: 5,
		},
		Schedules: Schedules{
			Reconcile:    "0 */15 * * * *",
			RequestSweep: "@every 30s",
			OutboxRelay:  "@every 5s",
		},
		RateLimit: RateLimitConfig{
			ReadsPerMinute:  600,
			WritesPerMinute: 120,
		},
		Issuer: EndpointConfig{
			Timeout: 10 * time.Second,
		},
		TradeRepository: EndpointConfig{
			Timeout: 10 * time.Second,
		},
		CSD: map[string]CSDCredentials{},
	}
}

// Load reads configuration from environment variables after loading a .env
// file if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests do not touch the
// process environment.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg.Env = get("ISSUANCE_ENV", cfg.Env)
	cfg.Server.Addr = get("ISSUANCE_ADDR", cfg.Server.Addr)
	cfg.Server.JWTSigningKey = get("JWT_SIGNING_KEY", cfg.Server.JWTSigningKey)
	cfg.Server.RoleBindings = get("ROLE_BINDINGS", "")
	cfg.Database.URL = get("DATABASE_URL", "")
	cfg.Redis.URL = get("REDIS_URL", "")
	cfg.Kafka.Brokers = liststr.SplitList(get("KAFKA_BROKERS", ""))
	cfg.Kafka.EventsTopicPrefix = get("KAFKA_EVENTS_TOPIC_PREFIX", cfg.Kafka.EventsTopicPrefix)
	cfg.Kafka.IngestTopic = get("KAFKA_INGEST_TOPIC", cfg.Kafka.IngestTopic)
	cfg.Kafka.ConsumerGroup = get("KAFKA_CONSUMER_GROUP", cfg.Kafka.ConsumerGroup)
	cfg.Schedules.Reconcile = get("RECONCILE_SCHEDULE", cfg.Schedules.Reconcile)
	cfg.Schedules.RequestSweep = get("REQUEST_SWEEP_SCHEDULE", cfg.Schedules.RequestSweep)
	cfg.Schedules.OutboxRelay = get("OUTBOX_RELAY_SCHEDULE", cfg.Schedules.OutboxRelay)
	cfg.Issuer.Endpoint = strings.TrimRight(get("UNIT_ISSUER_ENDPOINT", ""), "/")
	cfg.Issuer.APIKey = get("UNIT_ISSUER_API_KEY", "")
	cfg.TradeRepository.Endpoint = strings.TrimRight(get("TRADE_REPOSITORY_ENDPOINT", ""), "/")
	cfg.TradeRepository.APIKey = get("TRADE_REPOSITORY_API_KEY", "")
	cfg.BlockedJurisdictions = liststr.SplitCodes(get("BLOCKED_JURISDICTIONS", ""))

	var err error
	if cfg.Lifecycle.RequestTTL, err = parseDuration(get("REQUEST_TTL", ""), cfg.Lifecycle.RequestTTL); err != nil {
		return Config{}, fmt.Errorf("REQUEST_TTL: %w", err)
	}
	if cfg.Lifecycle.MarkerRollbackOnFailure, err = parseBool(get("MARKER_ROLLBACK_ON_FAILURE", ""), false); err != nil {
		return Config{}, fmt.Errorf("MARKER_ROLLBACK_ON_FAILURE: %w", err)
	}
	if cfg.Lifecycle.MarkBeforeValidate, err = parseBool(get("CORPORATE_ACTION_MARK_BEFORE_VALIDATE", ""), false); err != nil {
		return Config{}, fmt.Errorf("CORPORATE_ACTION_MARK_BEFORE_VALIDATE: %w", err)
	}
	if cfg.Lifecycle.ExecutorWorkers, err = parseInt(get("REQUEST_EXECUTOR_WORKERS", ""), cfg.Lifecycle.ExecutorWorkers); err != nil {
		return Config{}, fmt.Errorf("REQUEST_EXECUTOR_WORKERS: %w", err)
	}
	if cfg.Lifecycle.ReconcileBatchSize, err = parseInt(get("RECONCILE_MAX_CONCURRENT", ""), cfg.Lifecycle.ReconcileBatchSize); err != nil {
		return Config{}, fmt.Errorf("RECONCILE_MAX_CONCURRENT: %w", err)
	}
	if cfg.Issuer.Timeout, err = parseDuration(get("UNIT_ISSUER_TIMEOUT", ""), cfg.Issuer.Timeout); err != nil {
		return Config{}, fmt.Errorf("UNIT_ISSUER_TIMEOUT: %w", err)
	}
	if cfg.TradeRepository.Timeout, err = parseDuration(get("TRADE_REPOSITORY_TIMEOUT", ""), cfg.TradeRepository.Timeout); err != nil {
		return Config{}, fmt.Errorf("TRADE_REPOSITORY_TIMEOUT: %w", err)
	}
	if cfg.RateLimit.Disabled, err = parseBool(get("RATE_LIMIT_DISABLED", ""), false); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_DISABLED: %w", err)
	}
	if cfg.RateLimit.ReadsPerMinute, err = parseInt(get("RATE_LIMIT_READS_PER_MINUTE", ""), cfg.RateLimit.ReadsPerMinute); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_READS_PER_MINUTE: %w", err)
	}
	if cfg.RateLimit.WritesPerMinute, err = parseInt(get("RATE_LIMIT_WRITES_PER_MINUTE", ""), cfg.RateLimit.WritesPerMinute); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_WRITES_PER_MINUTE: %w", err)
	}

	for _, system := range CSDSystems {
		endpoint := get("CSD_"+system+"_ENDPOINT", "")
		if endpoint == "" {
			continue
		}
		cfg.CSD[system] = CSDCredentials{
			Endpoint: strings.TrimRight(endpoint, "/"),
			APIKey:   get("CSD_"+system+"_API_KEY", ""),
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c Config) Validate() error {
	if c.Lifecycle.RequestTTL <= 0 {
		return fmt.Errorf("request TTL must be positive")
	}
	if !c.RateLimit.Disabled && (c.RateLimit.ReadsPerMinute <= 0 || c.RateLimit.WritesPerMinute <= 0) {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.IsProduction() && c.Server.JWTSigningKey == DefaultConfig().Server.JWTSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func parseDuration(v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func parseBool(v string, fallback bool) (bool, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func parseInt(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
