package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Log      Log
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	Auth     Auth
	Audit    Audit
	Engine   Engine
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type Log struct {
	Level  string
	Format string
}

// Database configures Postgres. An empty URL selects the in-memory stores.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the chain cache. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ChainTTL     time.Duration
}

// Kafka configures the outbox relay and the snapshot trigger consumer.
// No brokers disables both.
type Kafka struct {
	Brokers        []string
	AuditTopic     string
	TriggerTopic   string
	ConsumerGroup  string
	RelayInterval  time.Duration
	RelayBatchSize int
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// Audit tunes the read-side ops trail. Compliance events are never sampled.
type Audit struct {
	OpsSampleRate       float64
	OpsBreakerThreshold int
	OpsBreakerCooldown  time.Duration
}

// Engine holds the ownership policy. It can be overridden from a YAML file.
type Engine struct {
	OwnershipThreshold float64       `yaml:"ownership_threshold"`
	MaxDepth           int           `yaml:"max_depth"`
	MaxVisits          int           `yaml:"max_visits"`
	ResolveTimeout     time.Duration `yaml:"resolve_timeout"`
	ResolveConcurrency int           `yaml:"resolve_concurrency"`
	SnapshotRetries    int           `yaml:"snapshot_retries"`
	PeriodicInterval   time.Duration `yaml:"periodic_interval"`
	PeriodicWorkers    int           `yaml:"periodic_workers"`
}

// DefaultEngine is the policy used when no file overrides it.
func DefaultEngine() Engine {
	return Engine{
		OwnershipThreshold: 25,
		MaxDepth:           10,
		MaxVisits:          10000,
		ResolveTimeout:     2 * time.Second,
		ResolveConcurrency: 8,
		SnapshotRetries:    3,
		PeriodicInterval:   24 * time.Hour,
		PeriodicWorkers:    4,
	}
}

// Validate checks engine bounds.
func (e Engine) Validate() error {
	var errs []error
	if e.OwnershipThreshold <= 0 || e.OwnershipThreshold > 100 {
		errs = append(errs, fmt.Errorf("ownership_threshold must be in (0, 100], got %v", e.OwnershipThreshold))
	}
	if e.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("max_depth must be at least 1, got %d", e.MaxDepth))
	}
	if e.MaxVisits < 1 {
		errs = append(errs, fmt.Errorf("max_visits must be at least 1, got %d", e.MaxVisits))
	}
	if e.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve_timeout must be positive"))
	}
	if e.SnapshotRetries < 1 {
		errs = append(errs, fmt.Errorf("snapshot_retries must be at least 1, got %d", e.SnapshotRetries))
	}
	if e.PeriodicWorkers < 1 {
		errs = append(errs, fmt.Errorf("periodic_workers must be at least 1, got %d", e.PeriodicWorkers))
	}
	return errors.Join(errs...)
}

// LoadEngine reads a YAML policy file over the defaults.
func LoadEngine(path string) (Engine, error) {
	engine := DefaultEngine()
	if path == "" {
		return engine, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &engine); err != nil {
		return Engine{}, fmt.Errorf("parse engine policy: %w", err)
	}
	if err := engine.Validate(); err != nil {
		return Engine{}, fmt.Errorf("invalid engine policy: %w", err)
	}
	return engine, nil
}

// FromEnv builds the config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	engine, err := LoadEngine(os.Getenv("ENGINE_POLICY_FILE"))
	if err != nil {
		return Config{}, err
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:            envString("OWNERGRAPH_ADDR", ":8080"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS"),
		},
		Log: Log{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     os.Getenv("DATABASE_AUTO_MIGRATE") == "true",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", time.Second),
			ChainTTL:     envDuration("CHAIN_CACHE_TTL", 10*time.Minute),
		},
		Kafka: Kafka{
			Brokers:        envList("KAFKA_BROKERS"),
			AuditTopic:     envString("KAFKA_AUDIT_TOPIC", "ownergraph.audit"),
			TriggerTopic:   envString("KAFKA_TRIGGER_TOPIC", "ownergraph.snapshot-triggers"),
			ConsumerGroup:  envString("KAFKA_CONSUMER_GROUP", "ownergraph-snapshots"),
			RelayInterval:  envDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatchSize: envInt("OUTBOX_RELAY_BATCH_SIZE", 100),
		},
		Auth: Auth{
			JWTSigningKey: jwtSigningKey,
			Issuer:        envString("JWT_ISSUER", "ownergraph"),
			Audience:      envString("JWT_AUDIENCE", "ownergraph-api"),
		},
		Audit: Audit{
			OpsSampleRate:       envFloat("OPS_AUDIT_SAMPLE_RATE", 1),
			OpsBreakerThreshold: envInt("OPS_AUDIT_BREAKER_THRESHOLD", 5),
			OpsBreakerCooldown:  envDuration("OPS_AUDIT_BREAKER_COOLDOWN", time.Minute),
		},
		Engine: engine,
	}, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
