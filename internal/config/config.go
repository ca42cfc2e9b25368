// Package config loads the curator configuration from curator.yaml and the
// environment, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/curator-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Attributes AttributesConfig `yaml:"attributes" mapstructure:"attributes"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	Model        string  `yaml:"model" mapstructure:"model"`
	SuggestModel string  `yaml:"suggest_model" mapstructure:"suggest_model"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateRPS      float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// ExtractionConfig tunes the extraction runner.
type ExtractionConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// JobsConfig configures the async job gateway.
type JobsConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ReviewConfig configures the review workflow.
type ReviewConfig struct {
	QueueLimit int `yaml:"queue_limit" mapstructure:"queue_limit"`
}

// AttributesConfig points at an optional attribute registry file. When File
// is empty the built-in attribute set is used.
type AttributesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from curator.yaml (optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("curator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "curator.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.suggest_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.rate_rps", 2.0)
	v.SetDefault("extraction.max_concurrency", 4)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("review.queue_limit", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command depends on. Mode "store" covers
// commands that only touch the database, "model" adds the Anthropic client,
// "serve" adds the HTTP server and worker pool.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}
	checkModel := func() {
		if c.Anthropic.APIKey == "" {
			problems = append(problems, "anthropic.api_key is required")
		}
		if c.Anthropic.RateRPS < 0 {
			problems = append(problems, "anthropic.rate_rps must be >= 0")
		}
	}

	switch mode {
	case "store":
		checkStore()
	case "model":
		checkStore()
		checkModel()
	case "serve":
		checkStore()
		checkModel()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Jobs.Workers < 1 || c.Jobs.Workers > 32 {
			problems = append(problems, "jobs.workers must be between 1 and 32")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
