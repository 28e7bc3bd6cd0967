// Package config loads and validates the gateway's environment
// configuration. Credentials are validated here exactly once; the loaded
// Config is an immutable value passed down to the client manager.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quantarc/binance-gateway/core"
)

var (
	// ErrMissingCredential indicates a required credential is absent or empty.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", core.ErrConfig)
	// ErrPlaceholderCredential indicates a credential still holds a known
	// example value and was never configured.
	ErrPlaceholderCredential = fmt.Errorf("%w: placeholder credential", core.ErrConfig)
)

// placeholderValues are example strings shipped in setup docs. Matching is
// case-insensitive after trimming.
var placeholderValues = map[string]struct{}{
	"your_api_key_here":    {},
	"your_api_secret_here": {},
}

// Config is the validated gateway configuration.
type Config struct {
	APIKey     string
	APISecret  string
	UseTestnet bool

	RatePerMinute  int
	RatePerSecond  int
	RequestTimeout time.Duration
	ListenAddr     string
}

// Load reads configuration from the environment and validates it.
// Primary variables are API_KEY, API_SECRET and USE_TESTNET; the
// BINANCE_-prefixed spellings are accepted as fallbacks.
func Load() (Config, error) {
	vip := viper.New()
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = vip.BindEnv("api_key", "API_KEY", "BINANCE_API_KEY")
	_ = vip.BindEnv("api_secret", "API_SECRET", "BINANCE_API_SECRET")
	_ = vip.BindEnv("use_testnet", "USE_TESTNET", "BINANCE_TESTNET")

	vip.SetDefault("use_testnet", false)
	vip.SetDefault("rate_limit_per_minute", 1200)
	vip.SetDefault("rate_limit_per_second", 10)
	vip.SetDefault("request_timeout_seconds", 30)
	vip.SetDefault("listen_addr", ":8080")

	cfg := Config{
		APIKey:         strings.TrimSpace(vip.GetString("api_key")),
		APISecret:      strings.TrimSpace(vip.GetString("api_secret")),
		UseTestnet:     vip.GetBool("use_testnet"),
		RatePerMinute:  vip.GetInt("rate_limit_per_minute"),
		RatePerSecond:  vip.GetInt("rate_limit_per_second"),
		RequestTimeout: time.Duration(vip.GetInt("request_timeout_seconds")) * time.Second,
		ListenAddr:     vip.GetString("listen_addr"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. Error messages name the offending
// field, never its value.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key: %w", ErrMissingCredential)
	}
	if c.APISecret == "" {
		return fmt.Errorf("api_secret: %w", ErrMissingCredential)
	}
	if isPlaceholder(c.APIKey) {
		return fmt.Errorf("api_key: %w", ErrPlaceholderCredential)
	}
	if isPlaceholder(c.APISecret) {
		return fmt.Errorf("api_secret: %w", ErrPlaceholderCredential)
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("%w: rate_limit_per_minute must be positive", core.ErrConfig)
	}
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("%w: rate_limit_per_second must be positive", core.ErrConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout_seconds must be positive", core.ErrConfig)
	}
	return nil
}

func isPlaceholder(value string) bool {
	_, bad := placeholderValues[strings.ToLower(strings.TrimSpace(value))]
	return bad
}
