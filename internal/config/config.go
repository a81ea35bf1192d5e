// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	DB       DBConfig       `mapstructure:"db"`
	Adapters AdaptersConfig `mapstructure:"adapters"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// JobsConfig sizes the job runner and the admission ceiling.
type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
	MaxActive  int `mapstructure:"max_active"`
}

// IndexingConfig tunes the orchestrator.
type IndexingConfig struct {
	CandidateDelta   float64 `mapstructure:"candidate_delta"`
	ReverseNameLimit int     `mapstructure:"reverse_name_limit"`
	DefaultLimit     int     `mapstructure:"default_limit"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AdaptersConfig holds per-source credentials and pacing.
type AdaptersConfig struct {
	// Priority orders forward-phase execution; earlier sources win merge
	// field-fill conflicts.
	Priority   []string        `mapstructure:"priority"`
	RPS        float64         `mapstructure:"rps"`
	Burst      int             `mapstructure:"burst"`
	Timeout    int             `mapstructure:"timeout_seconds"`
	MaxRetries int             `mapstructure:"max_retries"`
	PageSize   int             `mapstructure:"page_size"`
	Yelp       SourceConfig    `mapstructure:"yelp"`
	Foursquare SourceConfig    `mapstructure:"foursquare"`
}

// SourceConfig is one upstream directory's credentials and endpoint.
type SourceConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLATEINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("jobs.workers", 3)
	v.SetDefault("jobs.queue_depth", 16)
	v.SetDefault("jobs.max_active", 3)
	v.SetDefault("indexing.candidate_delta", 0.02)
	v.SetDefault("indexing.reverse_name_limit", 3)
	v.SetDefault("indexing.default_limit", 50)
	v.SetDefault("adapters.priority", []string{"yelp", "foursquare"})
	v.SetDefault("adapters.rps", 5.0)
	v.SetDefault("adapters.burst", 1)
	v.SetDefault("adapters.timeout_seconds", 15)
	v.SetDefault("adapters.max_retries", 2)
	v.SetDefault("adapters.page_size", 20)
	v.SetDefault("adapters.yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("adapters.foursquare.base_url", "https://api.foursquare.com/v3")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.MaxActive <= 0 {
		return fmt.Errorf("jobs.max_active must be > 0")
	}
	if c.Indexing.CandidateDelta <= 0 {
		return fmt.Errorf("indexing.candidate_delta must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for _, source := range c.Adapters.Priority {
		switch source {
		case "yelp", "foursquare":
		default:
			return fmt.Errorf("adapters.priority contains unknown source %q", source)
		}
	}
	return nil
}
