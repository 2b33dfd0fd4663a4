// Package config provides application configuration loading.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables prefixed with PQ_ (nesting levels separated by
// double underscores, e.g. PQ_SERVER__PORT, PQ_DISPATCH__TRIGGER_SECRET).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PQ_"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	CORS      CORSConfig      `koanf:"cors"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Publisher PublisherConfig `koanf:"publisher"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DispatchConfig contains dispatch engine settings.
type DispatchConfig struct {
	Enabled        bool          `koanf:"enabled"`
	TriggerSecret  string        `koanf:"trigger_secret"`
	BatchSize      int           `koanf:"batch_size"`
	NumWorkers     int           `koanf:"num_workers"`
	CycleTimeout   time.Duration `koanf:"cycle_timeout"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
	ClaimStaleness time.Duration `koanf:"claim_staleness"`
	StalePolicy    string        `koanf:"stale_policy"`
	RunnerEnabled  bool          `koanf:"runner_enabled"`
	PollInterval   time.Duration `koanf:"poll_interval"`
}

// PublisherConfig contains publishing platform settings.
type PublisherConfig struct {
	Twitter TwitterConfig `koanf:"twitter"`
}

// TwitterConfig contains X/Twitter API settings.
type TwitterConfig struct {
	BearerToken string        `koanf:"bearer_token"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "15s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "15s",
		"server.idle_timeout":        "60s",

		"database.max_open_conns":    25,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "5m",
		"database.connect_timeout":   "30s",
		"database.connect_attempts":  5,
		"database.migrate":           true,
		"database.migrations_path":   "migrations",

		"log.level":  "info",
		"log.format": "json",

		"cors.allowed_origins": []string{},

		"dispatch.enabled":         true,
		"dispatch.batch_size":      100,
		"dispatch.num_workers":     4,
		"dispatch.cycle_timeout":   "2m",
		"dispatch.publish_timeout": "15s",
		"dispatch.claim_staleness": "15m",
		"dispatch.stale_policy":    "surface",
		"dispatch.runner_enabled":  false,
		"dispatch.poll_interval":   "1m",

		"publisher.twitter.base_url":   "https://api.twitter.com",
		"publisher.twitter.timeout":    "10s",
		"publisher.twitter.rate_limit": 1.0,
	}
}

// Load reads configuration from defaults, an optional YAML file and
// PQ_-prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// PQ_DISPATCH__TRIGGER_SECRET -> dispatch.trigger_secret
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	switch c.Dispatch.StalePolicy {
	case "surface", "requeue", "fail":
	default:
		return fmt.Errorf("dispatch.stale_policy must be one of surface, requeue, fail (got %q)", c.Dispatch.StalePolicy)
	}

	if c.Dispatch.Enabled && c.Publisher.Twitter.BearerToken == "" {
		return fmt.Errorf("publisher.twitter.bearer_token is required when dispatch is enabled")
	}

	return nil
}
