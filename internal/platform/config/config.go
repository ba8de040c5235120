package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	pstrings "dedup/pkg/platform/strings"
)

// Config is the full process configuration. Everything comes from the
// environment; there is no config file.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tasks    TasksConfig
	Dedup    DedupConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig configures the Postgres pool backing the registry store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the merge guard. An empty URL disables the guard.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the task-completed subscription and the audit relay.
// No brokers disables both.
type KafkaConfig struct {
	Brokers            []string
	ConsumerGroup      string
	TaskCompletedTopic string
	AuditTopic         string
}

// TasksConfig points at the task subsystem.
type TasksConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DedupConfig tunes review task creation and merge handling.
type DedupConfig struct {
	TaskConcurrency int
	MergeTxTimeout  time.Duration
	MergeLockTTL    time.Duration
	ProcessedTTL    time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// Malformed numbers and durations are reported rather than silently replaced.
func FromEnv() (Config, error) {
	p := envParser{}
	cfg := Config{
		Server: Server{
			Addr:          p.str("DEDUP_ADDR", ":8080"),
			JWTSigningKey: p.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     p.str("JWT_ISSUER", "dedup"),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             p.str("DATABASE_URL", ""),
			MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            pstrings.SplitAndTrim(os.Getenv("KAFKA_BROKERS")),
			ConsumerGroup:      p.str("KAFKA_CONSUMER_GROUP", "dedup"),
			TaskCompletedTopic: p.str("KAFKA_TASK_COMPLETED_TOPIC", "tasks.completed"),
			AuditTopic:         p.str("KAFKA_AUDIT_TOPIC", "dedup.audit"),
		},
		Tasks: TasksConfig{
			BaseURL: p.str("TASKS_BASE_URL", ""),
			Timeout: p.duration("TASKS_TIMEOUT", 10*time.Second),
		},
		Dedup: DedupConfig{
			TaskConcurrency: p.int("DEDUP_TASK_CONCURRENCY", 4),
			MergeTxTimeout:  p.duration("DEDUP_MERGE_TX_TIMEOUT", 30*time.Second),
			MergeLockTTL:    p.duration("DEDUP_MERGE_LOCK_TTL", 30*time.Second),
			ProcessedTTL:    p.duration("DEDUP_PROCESSED_TTL", 7*24*time.Hour),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would make the service misbehave at runtime.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("DEDUP_ADDR must not be empty"))
	}
	if c.Server.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be empty"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be at least 1"))
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS"))
	}
	if c.Dedup.TaskConcurrency < 1 {
		errs = append(errs, errors.New("DEDUP_TASK_CONCURRENCY must be at least 1"))
	}
	if c.Dedup.MergeTxTimeout <= 0 {
		errs = append(errs, errors.New("DEDUP_MERGE_TX_TIMEOUT must be positive"))
	}
	if c.Dedup.MergeLockTTL <= 0 {
		errs = append(errs, errors.New("DEDUP_MERGE_LOCK_TTL must be positive"))
	}
	if c.Dedup.ProcessedTTL <= 0 {
		errs = append(errs, errors.New("DEDUP_PROCESSED_TTL must be positive"))
	}
	if c.Tasks.Timeout <= 0 {
		errs = append(errs, errors.New("TASKS_TIMEOUT must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.TaskCompletedTopic == "" {
		errs = append(errs, errors.New("KAFKA_TASK_COMPLETED_TOPIC must be set when KAFKA_BROKERS is"))
	}
	return errors.Join(errs...)
}

type envParser struct {
	errs []error
}

func (p *envParser) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *envParser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
