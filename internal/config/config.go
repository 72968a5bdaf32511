// Package config loads application configuration from config.yaml and
// OUTREACH_* environment variables and initializes the global logger.
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
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Mapping    MappingConfig    `yaml:"mapping" mapstructure:"mapping"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the enrichment cache backend.
type CacheConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, memory
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ProvidersConfig tunes enrichment dispatch and each provider.
type ProvidersConfig struct {
	// Precedence lists provider names in priority order; earlier providers
	// win field conflicts.
	Precedence   []string     `yaml:"precedence" mapstructure:"precedence"`
	MaxBatchSize int          `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	RunCap       int          `yaml:"run_cap" mapstructure:"run_cap"`
	Concurrency  int          `yaml:"concurrency" mapstructure:"concurrency"`
	Retry        RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Hunter       HunterConfig `yaml:"hunter" mapstructure:"hunter"`
	Apollo       ApolloConfig `yaml:"apollo" mapstructure:"apollo"`
}

// RetryConfig configures the provider client's retry state machine.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// HunterKey is one Hunter.io API credential.
type HunterKey struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Credits int    `yaml:"credits" mapstructure:"credits"`
	Status  string `yaml:"status" mapstructure:"status"` // active or disabled
}

// HunterConfig configures the Hunter.io email finder.
type HunterConfig struct {
	Keys     []HunterKey `yaml:"keys" mapstructure:"keys"`
	BaseURL  string      `yaml:"base_url" mapstructure:"base_url"`
	RPS      float64     `yaml:"rps" mapstructure:"rps"`
	Burst    int         `yaml:"burst" mapstructure:"burst"`
	TTLHours int         `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ApolloConfig configures the Apollo people-match provider.
type ApolloConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
	Burst    int     `yaml:"burst" mapstructure:"burst"`
	TTLHours int     `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ValidationConfig configures structural record checks.
type ValidationConfig struct {
	RequiredFields     []string `yaml:"required_fields" mapstructure:"required_fields"`
	BlacklistDomains   []string `yaml:"blacklist_domains" mapstructure:"blacklist_domains"`
	MinEmailConfidence int      `yaml:"min_email_confidence" mapstructure:"min_email_confidence"`
}

// ScoringConfig points at the rule set file.
type ScoringConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// MappingConfig points at the field mapping file.
type MappingConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SyncConfig configures output targets.
type SyncConfig struct {
	SnapshotPath string           `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	Salesforce   SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion       NotionConfig     `yaml:"notion" mapstructure:"notion"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	Enabled  bool    `yaml:"enabled" mapstructure:"enabled"`
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	KeyPath  string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string  `yaml:"login_url" mapstructure:"login_url"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	Token   string  `yaml:"token" mapstructure:"token"`
	LeadDB  string  `yaml:"lead_db" mapstructure:"lead_db"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
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
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "outreach-cache.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("providers.precedence", []string{"hunter", "apollo"})
	v.SetDefault("providers.max_batch_size", 25)
	v.SetDefault("providers.concurrency", 4)
	v.SetDefault("providers.retry.max_attempts", 5)
	v.SetDefault("providers.retry.initial_backoff_ms", 500)
	v.SetDefault("providers.retry.max_backoff_ms", 30000)
	v.SetDefault("providers.retry.multiplier", 2.0)
	v.SetDefault("providers.retry.jitter_fraction", 0.2)
	v.SetDefault("providers.hunter.base_url", "https://api.hunter.io")
	v.SetDefault("providers.hunter.rps", 10)
	v.SetDefault("providers.hunter.burst", 10)
	v.SetDefault("providers.hunter.ttl_hours", 720)
	v.SetDefault("providers.apollo.base_url", "https://api.apollo.io")
	v.SetDefault("providers.apollo.rps", 5)
	v.SetDefault("providers.apollo.burst", 5)
	v.SetDefault("providers.apollo.ttl_hours", 168)
	v.SetDefault("validation.required_fields", []string{"last_name", "company"})
	v.SetDefault("validation.min_email_confidence", 50)
	v.SetDefault("scoring.rules_path", "scoring.yaml")
	v.SetDefault("mapping.path", "mapping.yaml")
	v.SetDefault("sync.snapshot_path", "snapshots/leads-{run}.xlsx")
	v.SetDefault("sync.salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("sync.salesforce.rps", 5)
	v.SetDefault("sync.notion.rps", 3)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. These are
// configuration errors: the run aborts before any provider call.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Providers.Precedence) == 0 {
		errs = append(errs, "providers.precedence must list at least one provider")
	}
	for _, name := range c.Providers.Precedence {
		if name != "hunter" && name != "apollo" {
			errs = append(errs, "unknown provider in precedence: "+name)
		}
	}
	switch c.Cache.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, "cache.driver must be sqlite, postgres, or memory")
	}
	if c.Providers.MaxBatchSize < 0 {
		errs = append(errs, "providers.max_batch_size must be >= 0")
	}
	if c.Providers.RunCap < 0 {
		errs = append(errs, "providers.run_cap must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
