// Package config loads rocketcore's configuration the way station/internal/config/config.go
// does: a flat Config struct with nested sub-configs, populated from defaults, an optional
// YAML file, and environment variables via spf13/viper, then checked with
// go-playground/validator struct tags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is rocketcore's top-level configuration.
type Config struct {
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// HTTPConfig controls the internal/httpapi server.
type HTTPConfig struct {
	Port int `mapstructure:"port" validate:"required,gt=0,lt=65536"`
}

// DatabaseConfig controls the internal/storage SQLite connection.
type DatabaseConfig struct {
	Path            string `mapstructure:"path" validate:"required"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gt=0"`
}

// WebhookConfig holds webhook timeout/retry settings for §4.7/§4.8. They are loaded and
// validated here, but the dispatcher and the retry tick do not read them: they use a fixed
// 30s dispatch timeout, a 30s retry tick, and a batch of 50.
type WebhookConfig struct {
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RetryBatchSize  int           `mapstructure:"retry_batch_size" validate:"gt=0"`
}

// SchedulerConfig holds the §4.8/§4.10 background ticker settings. They are loaded and
// validated here, but internal/scheduler does not read them: its workflow-timeout tick runs
// every 60s.
type SchedulerConfig struct {
	TimeoutInterval time.Duration `mapstructure:"timeout_interval"`
}

// Load reads configuration from defaults, an optional file at path, and the environment
// (prefixed ROCKETCORE_), then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROCKETCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("debug", false)
	v.SetDefault("http.port", 8080)
	v.SetDefault("database.path", "rocketcore.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("webhook.dispatch_timeout", 30*time.Second)
	v.SetDefault("webhook.retry_interval", 30*time.Second)
	v.SetDefault("webhook.retry_batch_size", 50)
	v.SetDefault("scheduler.timeout_interval", 60*time.Second)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
