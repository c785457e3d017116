// Package config loads and validates the configuration for the remoteconfig
// provider daemon: which App Configuration endpoints to watch, which keys to
// select, how push notifications and Kubernetes-based replica discovery are
// wired in, and the ambient server/logging/metrics settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the root configuration for the remoteconfig server.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	RemoteConfig RemoteConfigConfig `mapstructure:"remoteconfig"`
	Push         PushConfig         `mapstructure:"push"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// AppConfig holds identity fields used in logs and metric labels.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
}

// ServerConfig holds the admin HTTP server's listener and timeout settings.
type ServerConfig struct {
	Port                    int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Host                    string        `mapstructure:"host" validate:"required"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" validate:"gt=0"`
}

// LogConfig mirrors pkg/logger.Config so it can be unmarshalled directly.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	Output     string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr file"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SelectorConfig mirrors remoteconfig.Selector.
type SelectorConfig struct {
	KeyFilter    string `mapstructure:"key_filter"`
	LabelFilter  string `mapstructure:"label_filter"`
	SnapshotName string `mapstructure:"snapshot_name"`
}

// WatcherConfig mirrors remoteconfig.Watcher.
type WatcherConfig struct {
	Key          string        `mapstructure:"key"`
	Label        string        `mapstructure:"label"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RefreshAll   bool          `mapstructure:"refresh_all"`
}

// RemoteConfigConfig holds the endpoint/selector/watcher settings fed into
// remoteconfig.Options.
type RemoteConfigConfig struct {
	Endpoints         []string         `mapstructure:"endpoints"`
	ConnectionStrings []string         `mapstructure:"connection_strings"`
	Selectors         []SelectorConfig `mapstructure:"selectors" validate:"required,min=1"`
	ChangeWatchers    []WatcherConfig  `mapstructure:"change_watchers"`
	StartupTimeout    time.Duration    `mapstructure:"startup_timeout" validate:"gt=0"`
	Required          bool             `mapstructure:"required"`
}

// PushConfig controls the Redis-backed push-notification relay.
type PushConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	RedisAddr     string  `mapstructure:"redis_addr"`
	Channel       string  `mapstructure:"channel"`
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"omitempty,gt=0"`
	Burst         int     `mapstructure:"burst" validate:"omitempty,gt=0"`
}

// DiscoveryConfig controls optional Kubernetes Endpoints-based replica
// discovery.
type DiscoveryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Namespace   string        `mapstructure:"namespace"`
	ServiceName string        `mapstructure:"service_name"`
	Interval    time.Duration `mapstructure:"interval"`
}

// MetricsConfig holds the metrics settings. The server does not read them:
// the admin router always mounts the Prometheus handler at /metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads configuration from an optional YAML file at configPath,
// layered under environment variables and hardcoded defaults. An empty
// configPath skips the file read and relies on defaults/env alone.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables and
// defaults only, skipping any config file.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig("")
}

func setDefaults() {
	viper.SetDefault("app.name", "remoteconfig")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("remoteconfig.startup_timeout", "30s")
	viper.SetDefault("remoteconfig.required", true)

	viper.SetDefault("push.enabled", false)
	viper.SetDefault("push.channel", "config-changes")
	viper.SetDefault("push.rate_per_second", 0.5)
	viper.SetDefault("push.burst", 2)

	viper.SetDefault("discovery.enabled", false)
	viper.SetDefault("discovery.interval", "15s")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

var validate = validator.New()

// Validate runs struct-tag validation and the cross-field checks the tags
// can't express (discovery requires a namespace/service, push requires a
// Redis address).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if len(c.RemoteConfig.Endpoints) == 0 && len(c.RemoteConfig.ConnectionStrings) == 0 {
		return fmt.Errorf("remoteconfig: either endpoints or connection_strings must be set")
	}

	if c.Discovery.Enabled {
		if c.Discovery.Namespace == "" {
			return fmt.Errorf("discovery: namespace is required when discovery is enabled")
		}
		if c.Discovery.ServiceName == "" {
			return fmt.Errorf("discovery: service_name is required when discovery is enabled")
		}
	}

	if c.Push.Enabled && c.Push.RedisAddr == "" {
		return fmt.Errorf("push: redis_addr is required when push is enabled")
	}

	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' validation", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
