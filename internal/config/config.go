package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the SDK configuration.
type Config struct {
	BaseURL   string `mapstructure:"base_url"`
	EventsURL string `mapstructure:"events_url"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`

	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	RefreshAttempts    int           `mapstructure:"refresh_attempts"`
	KeepAliveTTL       time.Duration `mapstructure:"keepalive_ttl"`
	EventRetryWait     time.Duration `mapstructure:"event_retry_wait"`
	EventRetryAttempts int           `mapstructure:"event_retry_attempts"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from a .env file (if present), environment
// variables and an optional yaml file. Environment variables take
// precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("meshcall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("MESHCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", "https://auvious.video/")
	v.SetDefault("events_url", "wss://auvious.video/events")
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_delay", "500ms")
	v.SetDefault("refresh_attempts", 3)
	v.SetDefault("keepalive_ttl", "15s")
	v.SetDefault("event_retry_wait", "700ms")
	v.SetDefault("event_retry_attempts", 3)
	v.SetDefault("log_level", "info")

	// Missing config file is fine, defaults plus env cover everything.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	return &cfg, nil
}
