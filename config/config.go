// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config stores all deployment parameters for the service.
type Config struct {
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	RegistrarBaseURL string        `mapstructure:"REGISTRAR_BASE_URL"`
	RegistrarAPIKey  string        `mapstructure:"REGISTRAR_API_KEY"`
	RabbitMQURL      string        `mapstructure:"RABBITMQ_URL"`
	ServerPort       string        `mapstructure:"SERVER_PORT"`
	WorkerCount      int           `mapstructure:"WORKER_COUNT"`
	QueueCapacity    int           `mapstructure:"QUEUE_CAPACITY"`
	ShutdownGrace    time.Duration `mapstructure:"SHUTDOWN_GRACE"`
	AdminKeyHash     string        `mapstructure:"ADMIN_KEY_HASH"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
}

// Load reads configuration from environment variables, applying deployment
// defaults for everything except the two required endpoints.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DB_MAX_CONNS", 100)
	v.SetDefault("WORKER_COUNT", 64)
	v.SetDefault("QUEUE_CAPACITY", 4000)
	v.SetDefault("SHUTDOWN_GRACE", "60s")

	for _, key := range []string{
		"DATABASE_URL", "DB_MAX_CONNS",
		"REGISTRAR_BASE_URL", "REGISTRAR_API_KEY",
		"RABBITMQ_URL", "SERVER_PORT",
		"WORKER_COUNT", "QUEUE_CAPACITY", "SHUTDOWN_GRACE",
		"ADMIN_KEY_HASH", "JWT_SECRET",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.RegistrarBaseURL == "" {
		return nil, fmt.Errorf("config: REGISTRAR_BASE_URL is required")
	}

	return &cfg, nil
}
