package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

const (
	sandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	productionBaseURL = "https://api-m.paypal.com"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	PayPalClientID     string `env:"PAYPAL_CLIENT_ID,required"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET,required"`
	PayPalWebhookID    string `env:"PAYPAL_WEBHOOK_ID,required"`
	PayPalEnvironment  string `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox"`
	// PayPalBaseURL overrides environment-based URL selection; used to point
	// the client at cmd/mock-gateway locally.
	PayPalBaseURL   string `env:"PAYPAL_BASE_URL"`
	GatewayTimeoutS int    `env:"GATEWAY_TIMEOUT_S" envDefault:"15"`
	VerifyWebhooks  bool   `env:"VERIFY_WEBHOOKS" envDefault:"false"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) GatewayBaseURL() string {
	if c.PayPalBaseURL != "" {
		return c.PayPalBaseURL
	}
	if c.PayPalEnvironment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Signature verification is mandatory in production; elsewhere it can be
// switched on explicitly. Skipping it outside production is a deliberate
// relaxation to ease local testing against unsigned payloads.
func (c *Config) WebhookVerificationEnabled() bool {
	return c.IsProduction() || c.VerifyWebhooks
}
