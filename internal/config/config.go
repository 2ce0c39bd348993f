package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Exa       ExaConfig       `yaml:"exa" mapstructure:"exa"`
	Instantly InstantlyConfig `yaml:"instantly" mapstructure:"instantly"`
	Resend    ResendConfig    `yaml:"resend" mapstructure:"resend"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// ExaConfig holds Exa websets API settings.
type ExaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// InstantlyConfig holds Instantly API settings.
type InstantlyConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ResendConfig holds Resend email delivery settings.
type ResendConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
}

// DiscoveryConfig configures webset creation and polling.
type DiscoveryConfig struct {
	ResultCount     int `yaml:"result_count" mapstructure:"result_count"`
	PollAttempts    int `yaml:"poll_attempts" mapstructure:"poll_attempts"`
	PollIntervalSec int `yaml:"poll_interval_sec" mapstructure:"poll_interval_sec"`
}

// PipelineConfig configures enrichment and routing behavior.
type PipelineConfig struct {
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
	EnrichRetries     int `yaml:"enrich_retries" mapstructure:"enrich_retries"`
	AttachConcurrency int `yaml:"attach_concurrency" mapstructure:"attach_concurrency"`
}

// ScheduleConfig holds the cron expressions for the recurring jobs.
type ScheduleConfig struct {
	QueryGeneration string `yaml:"query_generation" mapstructure:"query_generation"`
	Discovery       string `yaml:"discovery" mapstructure:"discovery"`
	AnalyticsSync   string `yaml:"analytics_sync" mapstructure:"analytics_sync"`
	Digest          string `yaml:"digest" mapstructure:"digest"`
}

// ServerConfig configures the trigger HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("exa.base_url", "https://api.exa.ai")
	v.SetDefault("instantly.base_url", "https://api.instantly.ai/api/v2")
	v.SetDefault("instantly.requests_per_sec", 5)
	v.SetDefault("resend.base_url", "https://api.resend.com")
	v.SetDefault("discovery.result_count", 25)
	v.SetDefault("discovery.poll_attempts", 60)
	v.SetDefault("discovery.poll_interval_sec", 5)
	v.SetDefault("pipeline.enrich_concurrency", 3)
	v.SetDefault("pipeline.enrich_retries", 2)
	v.SetDefault("pipeline.attach_concurrency", 5)
	v.SetDefault("schedule.query_generation", "30 8 * * *")
	v.SetDefault("schedule.discovery", "0 9 * * *")
	v.SetDefault("schedule.analytics_sync", "0 * * * *")
	v.SetDefault("schedule.digest", "0 18 * * *")

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

// Validate checks that the configuration required for the given mode is
// present. Modes map to top-level commands so each command fails fast on
// missing credentials instead of midway through a run.
func (c *Config) Validate(mode string) error {
	var missing []string

	needStore := func() {
		// sqlite falls back to a local file when no DSN is set.
		if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
			missing = append(missing, "store.database_url is required")
		}
	}
	needAI := func() {
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	}

	switch mode {
	case "migrate":
		needStore()
	case "generate":
		needStore()
		needAI()
	case "discover":
		needStore()
		if c.Exa.Key == "" {
			missing = append(missing, "exa.key is required")
		}
	case "enrich":
		needStore()
		needAI()
	case "confirm", "sync":
		needStore()
		if c.Instantly.Key == "" {
			missing = append(missing, "instantly.key is required")
		}
	case "digest":
		needStore()
		if c.Resend.Key == "" {
			missing = append(missing, "resend.key is required")
		}
		if c.Resend.FromEmail == "" {
			missing = append(missing, "resend.from_email is required")
		}
	case "serve":
		needStore()
		needAI()
		if c.Exa.Key == "" {
			missing = append(missing, "exa.key is required")
		}
		if c.Instantly.Key == "" {
			missing = append(missing, "instantly.key is required")
		}
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.EnrichConcurrency < 1 || c.Pipeline.EnrichConcurrency > 50 {
		missing = append(missing, "pipeline.enrich_concurrency must be between 1 and 50")
	}
	if c.Pipeline.AttachConcurrency < 1 || c.Pipeline.AttachConcurrency > 50 {
		missing = append(missing, "pipeline.attach_concurrency must be between 1 and 50")
	}
	if c.Discovery.PollAttempts < 1 {
		missing = append(missing, "discovery.poll_attempts must be >= 1")
	}
	if c.Discovery.ResultCount < 1 {
		missing = append(missing, "discovery.result_count must be >= 1")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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
