package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TINYME_SERVER_HTTP_ADDR
const EnvPrefix = "TINYME"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Engine EngineConfig `mapstructure:"engine"`
	Seed   SeedConfig   `mapstructure:"seed"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	OTel   OTelConfig   `mapstructure:"otel"`
}

// ServerConfig holds the HTTP listener and logging settings
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig sizes the request queue
type EngineConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// SeedConfig points at the YAML reference data loaded on start
type SeedConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig enables loading and saving reference data in Redis
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// KafkaConfig holds the request and event topics
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	RequestsTopic string   `mapstructure:"requests_topic"`
	GroupID       string   `mapstructure:"group_id"`
	ProtoEnabled  bool     `mapstructure:"proto_enabled"`
	ProtoTopic    string   `mapstructure:"proto_topic"`
}

// NATSConfig enables the NATS event fan-out
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// OTelConfig enables export to an OpenTelemetry collector
type OTelConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	ServiceVersion string        `mapstructure:"service_version"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "pretty")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("engine.queue_size", 1024)

	v.SetDefault("seed.path", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tinyme")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "tinyme-events")
	v.SetDefault("kafka.requests_topic", "tinyme-requests")
	v.SetDefault("kafka.group_id", "tinyme-engine")
	v.SetDefault("kafka.proto_enabled", false)
	v.SetDefault("kafka.proto_topic", "tinyme-events-pb")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "tinyme.events")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_version", "0.1.0")
	v.SetDefault("otel.metric_interval", 15*time.Second)
}

// Load reads the optional YAML file at path, applies TINYME_* environment
// overrides on top and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings enabled features depend on
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr must not be empty"))
	}
	switch strings.ToLower(c.Server.LogFormat) {
	case "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("server.log_format must be json or pretty, got %q", c.Server.LogFormat))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, errors.New("engine.queue_size must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr must not be empty"))
	}
	if c.Kafka.Enabled || c.Kafka.ProtoEnabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers must not be empty"))
		}
	}
	if c.Kafka.Enabled && (c.Kafka.EventsTopic == "" || c.Kafka.RequestsTopic == "" || c.Kafka.GroupID == "") {
		errs = append(errs, errors.New("kafka.events_topic, kafka.requests_topic and kafka.group_id are required"))
	}
	if c.Kafka.ProtoEnabled && c.Kafka.ProtoTopic == "" {
		errs = append(errs, errors.New("kafka.proto_topic must not be empty"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url must not be empty"))
	}
	if c.OTel.Enabled && c.OTel.Endpoint == "" {
		errs = append(errs, errors.New("otel.endpoint must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
