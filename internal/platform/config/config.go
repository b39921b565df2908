package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server  Server
	Gateway Gateway
	Redis   RedisConfig
	Kafka   Kafka
	Audit   Audit
	Session Session
	Locale  Locale
	Tracing Tracing
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"MOFLOW_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"MOFLOW_REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"MOFLOW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Gateway points at the remote MO service API.
type Gateway struct {
	BaseURL string            `env:"MO_BASE_URL" envDefault:"http://localhost:5000"`
	Timeout time.Duration     `env:"MO_TIMEOUT" envDefault:"30s"`
	Headers map[string]string `env:"MO_HEADERS"`
}

// RedisConfig is optional; an empty URL keeps audit logs in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka is optional; no brokers disables change notifications.
type Kafka struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:","`
	ClientID          string        `env:"KAFKA_CLIENT_ID" envDefault:"moflow"`
	EnsureTopics      bool          `env:"KAFKA_ENSURE_TOPICS" envDefault:"false"`
	Partitions        int32         `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"1"`
	ReplicationFactor int16         `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
	ProduceLinger     time.Duration `env:"KAFKA_PRODUCE_LINGER" envDefault:"5ms"`
	DialTimeout       time.Duration `env:"KAFKA_DIAL_TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether any brokers are configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Audit controls how audit entries are persisted.
type Audit struct {
	// Store is "memory" or "redis".
	Store       string        `env:"AUDIT_STORE" envDefault:"memory"`
	AsyncBuffer int           `env:"AUDIT_ASYNC_BUFFER" envDefault:"0"`
	TTL         time.Duration `env:"AUDIT_TTL" envDefault:"24h"`
}

type Session struct {
	TTL             time.Duration `env:"SESSION_TTL" envDefault:"8h"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
}

type Locale struct {
	Default string `env:"LOCALE_DEFAULT" envDefault:"da"`
}

// Tracing is optional; an empty endpoint keeps spans in process.
type Tracing struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"moflow"`
	Insecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

const (
	AuditStoreMemory = "memory"
	AuditStoreRedis  = "redis"
)

// FromEnv reads the configuration from the environment and checks the
// combinations main relies on.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// compact trims entries and drops empty and repeated ones, keeping order.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (c Config) validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("MO_BASE_URL must be an absolute URL, got %q", c.Gateway.BaseURL)
	}
	switch c.Audit.Store {
	case AuditStoreMemory:
	case AuditStoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("AUDIT_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown AUDIT_STORE %q", c.Audit.Store)
	}
	if c.Audit.AsyncBuffer < 0 {
		return fmt.Errorf("AUDIT_ASYNC_BUFFER must not be negative")
	}
	if c.Session.TTL <= 0 || c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("SESSION_TTL and SESSION_CLEANUP_INTERVAL must be positive")
	}
	if c.Kafka.Enabled() && (c.Kafka.Partitions < 1 || c.Kafka.ReplicationFactor < 1) {
		return fmt.Errorf("kafka topic partitions and replication must be at least 1")
	}
	return nil
}
