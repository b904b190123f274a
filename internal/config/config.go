// Package config содержит логику чтения конфигурации магазина.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации магазина.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	AuthSecret            string `env:"AUTH_SECRET"`
	PaymentGatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`
	PaymentSecret         string `env:"PAYMENT_SECRET"`
	PaymentReturnURL      string `env:"PAYMENT_RETURN_URL"`
	LogLevel              string `env:"LOG_LEVEL"`

	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	PaymentPollInterval time.Duration `env:"PAYMENT_POLL_INTERVAL" envDefault:"1s"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "session signing secret")
	flag.StringVar(&cfg.PaymentGatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.PaymentSecret, "p", "", "payment gateway signing secret")
	flag.StringVar(&cfg.PaymentReturnURL, "u", "", "payment callback URL passed to the gateway")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.AuthSecret, fromEnv.AuthSecret)
	override(&cfg.PaymentGatewayAddress, fromEnv.PaymentGatewayAddress)
	override(&cfg.PaymentSecret, fromEnv.PaymentSecret)
	override(&cfg.PaymentReturnURL, fromEnv.PaymentReturnURL)
	override(&cfg.LogLevel, fromEnv.LogLevel)

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.PaymentGatewayAddress != "" && cfg.PaymentSecret == "" {
		return nil, fmt.Errorf("payment secret is required when gateway address is set")
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
