package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/merchantd/platform/internal/payments"
)

// Config is the file-based server configuration. Secrets and connection
// addresses come from the environment instead.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Commissions payments.CommissionRates `yaml:"commissions"`
	Payments    struct {
		EnabledProviders []string `yaml:"enabled_providers"`
	} `yaml:"payments"`
	Outbox struct {
		Embedded     bool          `yaml:"embedded"`
		PollInterval time.Duration `yaml:"poll_interval"`
		BatchSize    int32         `yaml:"batch_size"`
		MaxAttempts  int           `yaml:"max_attempts"`
	} `yaml:"outbox"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Commissions = payments.DefaultCommissionRates()
	cfg.Payments.EnabledProviders = []string{"stripe", "alipay"}
	cfg.Outbox.Embedded = true
	return cfg
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := config.Commissions.Validate(); err != nil {
			return nil, fmt.Errorf("invalid commission rates: %w", err)
		}
	}

	// Split deployments run the standalone worker binary and turn the
	// embedded loop off per environment.
	config.Outbox.Embedded = getEnvAsBool("OUTBOX_WORKER_EMBEDDED", config.Outbox.Embedded)

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
