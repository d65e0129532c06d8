/*
Package config loads runtime configuration for the billing engine server.

PURPOSE:
  Centralizes the environment-driven settings: HTTP server, database
  path, and the validation policy knobs. Values come from environment
  variables (BILLING_ prefix) with sensible defaults; the result is a
  plain struct handed into constructors - the engines never read
  configuration globally.

SEE ALSO:
  - validation: Consumes ValidationConfig()
  - cmd/server: The only loader call site
*/
package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/norvik/billing-engine/validation"
)

// Config holds all server configuration.
type Config struct {
	Port           int      `mapstructure:"PORT"`
	DatabasePath   string   `mapstructure:"DATABASE_PATH"`
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	MinChangeReasonLength    int     `mapstructure:"MIN_CHANGE_REASON_LENGTH"`
	RateChangeCooldownDays   int     `mapstructure:"RATE_CHANGE_COOLDOWN_DAYS"`
	EstimateTolerancePercent float64 `mapstructure:"ESTIMATE_TOLERANCE_PERCENT"`
	MaxBatchSize             int     `mapstructure:"MAX_BATCH_SIZE"`
}

// Load reads configuration from BILLING_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BILLING")
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("DATABASE_PATH", "billing.db")
	v.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("MIN_CHANGE_REASON_LENGTH", 10)
	v.SetDefault("RATE_CHANGE_COOLDOWN_DAYS", 30)
	v.SetDefault("ESTIMATE_TOLERANCE_PERCENT", 10.0)
	v.SetDefault("MAX_BATCH_SIZE", 100)

	for _, key := range []string{
		"PORT", "DATABASE_PATH", "ALLOWED_ORIGINS",
		"MIN_CHANGE_REASON_LENGTH", "RATE_CHANGE_COOLDOWN_DAYS",
		"ESTIMATE_TOLERANCE_PERCENT", "MAX_BATCH_SIZE",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidationConfig converts the flat settings into the validation
// engine's policy struct.
func (c *Config) ValidationConfig() validation.Config {
	return validation.Config{
		MinChangeReasonLength:    c.MinChangeReasonLength,
		RateChangeCooldown:       time.Duration(c.RateChangeCooldownDays) * 24 * time.Hour,
		EstimateTolerancePercent: decimal.NewFromFloat(c.EstimateTolerancePercent),
		MaxBatchSize:             c.MaxBatchSize,
	}
}
