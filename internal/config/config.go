// Package config loads runtime settings from environment variables.
// Everything has a local-friendly default; only the Resend key gates
// real email delivery.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server's runtime settings.
type Config struct {
	ListenAddr string `env:"PERCENTUAIS_LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"PERCENTUAIS_DB_PATH"     envDefault:"percentuais.db"`

	// Email delivery. With an empty key the server falls back to a
	// no-op sender that only logs.
	ResendKey   string `env:"PERCENTUAIS_RESEND_KEY"`
	FromAddress string `env:"PERCENTUAIS_FROM_ADDRESS" envDefault:"Percentuais <no-reply@percentuais.local>"`

	// ComplianceAddress receives a copy of every accepted declaration.
	ComplianceAddress string `env:"PERCENTUAIS_COMPLIANCE_ADDRESS"`

	// ReviewBaseURL is the deep link prefix embedded in director
	// review-request emails.
	ReviewBaseURL string `env:"PERCENTUAIS_REVIEW_BASE_URL" envDefault:"http://localhost:8080/reviews"`

	SessionTTL          time.Duration `env:"PERCENTUAIS_OTP_TTL"              envDefault:"10m"`
	OutboxRetryInterval time.Duration `env:"PERCENTUAIS_OUTBOX_RETRY_INTERVAL" envDefault:"1m"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
