package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig holds the settings for the outbound messaging gateway.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// APIKeySecretARN, when set, overrides APIKey with the value fetched
	// from AWS Secrets Manager at startup.
	APIKeySecretARN string
	SessionID       int
	WebhookSecret   string
	Timeout         time.Duration
}

// Config is the full runtime configuration for the notifier. It is loaded
// once at startup and passed explicitly into constructors.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	Gateway GatewayConfig

	// NotificationsEnabled is the global kill switch; the force flag on a
	// run bypasses it.
	NotificationsEnabled bool

	// SendInterval is the minimum spacing between consecutive gateway sends.
	SendInterval time.Duration

	// NotifyOffsets are the days-before-expiration tiers covered by a
	// full daily run.
	NotifyOffsets []int

	HTTPAddr string

	TracingEndpoint string
	Environment     string
}

// Load reads configuration from the environment and, when present, from
// the given YAML config file.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gateway.base_url", "https://wasenderapi.com")
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("notifications_enabled", false)
	v.SetDefault("send_interval", "5s")
	v.SetDefault("notify_offsets", []int{0, 1, 3, 7})
	v.SetDefault("http_addr", ":8084")
	v.SetDefault("environment", "development")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:   v.GetString("database_url"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		Gateway: GatewayConfig{
			BaseURL:         v.GetString("gateway.base_url"),
			APIKey:          v.GetString("gateway.api_key"),
			APIKeySecretARN: v.GetString("gateway.api_key_secret_arn"),
			SessionID:       v.GetInt("gateway.session_id"),
			WebhookSecret:   v.GetString("gateway.webhook_secret"),
			Timeout:         v.GetDuration("gateway.timeout"),
		},
		NotificationsEnabled: v.GetBool("notifications_enabled"),
		SendInterval:         v.GetDuration("send_interval"),
		NotifyOffsets:        v.GetIntSlice("notify_offsets"),
		HTTPAddr:             v.GetString("http_addr"),
		TracingEndpoint:      v.GetString("tracing_endpoint"),
		Environment:          v.GetString("environment"),
	}
	return cfg, nil
}

// Validate checks the settings a dispatch run cannot proceed without.
// It is called eagerly, before any scan, so a misconfigured deployment
// fails once with a clear message instead of failing every candidate.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is not configured")
	}
	if c.Gateway.APIKey == "" && c.Gateway.APIKeySecretARN == "" {
		return fmt.Errorf("gateway API key is not configured")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL is not configured")
	}
	if c.SendInterval < 0 {
		return fmt.Errorf("send_interval must not be negative")
	}
	return nil
}
