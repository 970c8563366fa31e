package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "RECORDSTORE"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tracklist TracklistConfig `mapstructure:"tracklist"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type QueueConfig struct {
	Backend     string        `mapstructure:"backend"`
	Stream      string        `mapstructure:"stream"`
	Group       string        `mapstructure:"group"`
	Consumer    string        `mapstructure:"consumer"`
	LimiterKey  string        `mapstructure:"limiter_key"`
	Rate        float64       `mapstructure:"rate"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	ClaimIdle   time.Duration `mapstructure:"claim_idle"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type TracklistConfig struct {
	Adapter      string        `mapstructure:"adapter"`
	BaseURL      string        `mapstructure:"base_url"`
	AppName      string        `mapstructure:"app_name"`
	AppVersion   string        `mapstructure:"app_version"`
	Contact      string        `mapstructure:"contact"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type WorkerConfig struct {
	// Embedded runs the sync consumer inside the serve command.
	Embedded bool `mapstructure:"embedded"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.addr", ":50051")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "root:root@tcp(localhost:3306)/recordstore?parseTime=true")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.stream", "recordstore:tracklist-sync")
	v.SetDefault("queue.group", "tracklist-workers")
	v.SetDefault("queue.consumer", "")
	v.SetDefault("queue.limiter_key", "recordstore:tracklist-sync:limiter")
	v.SetDefault("queue.rate", 1.0)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.base_backoff", 2*time.Second)
	v.SetDefault("queue.max_backoff", 5*time.Minute)
	v.SetDefault("queue.job_timeout", 30*time.Second)
	v.SetDefault("queue.claim_idle", time.Minute)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tracklist-sync")
	v.SetDefault("kafka.group_id", "tracklist-workers")

	v.SetDefault("tracklist.adapter", "http-musicbrainz")
	v.SetDefault("tracklist.base_url", "https://musicbrainz.org/ws/2")
	v.SetDefault("tracklist.app_name", "record-store")
	v.SetDefault("tracklist.app_version", "0.1.0")
	v.SetDefault("tracklist.contact", "")
	v.SetDefault("tracklist.fetch_timeout", 10*time.Second)

	v.SetDefault("worker.embedded", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "record-store")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads defaults, then the optional YAML file at path, then
// RECORDSTORE_* environment variables (queue.max_attempts is
// RECORDSTORE_QUEUE_MAX_ATTEMPTS).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "pgx", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Queue.Backend {
	case "redis", "kafka", "memory":
	default:
		return fmt.Errorf("config: unsupported queue.backend %q", c.Queue.Backend)
	}
	switch c.Tracklist.Adapter {
	case "http-musicbrainz", "musicbrainz":
	default:
		return fmt.Errorf("config: unsupported tracklist.adapter %q", c.Tracklist.Adapter)
	}
	if c.Queue.Rate <= 0 {
		return fmt.Errorf("config: queue.rate must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("config: queue.max_attempts must be at least 1")
	}
	if c.Queue.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required for the kafka backend")
	}
	return nil
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
