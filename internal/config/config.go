// Package config loads the process configuration the way the rest of the
// stack does: environment variables, optionally seeded from a .env file in
// local development, with typed defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the dispatcher, lobby, and orchestrator need at
// startup.
type Config struct {
	Port string

	LogLevel  string
	LogFormat string
	LogOutput string

	CatalogPath string

	AIEnabled          bool
	AIDelayMs          int
	HumanOnlyMaxWaitMs int

	TurnTimeLimitSeconds int
	MaxConnections       int
}

// Load reads configuration from the environment, loading a .env file first
// if one is present (ignored if absent — this is a convenience for local
// development, never required).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),

		CatalogPath: getEnv("CATALOG_PATH", "testdata/catalog.json"),

		AIEnabled:          getEnvAsBool("AI_ENABLED", true),
		AIDelayMs:          getEnvAsInt("AI_DELAY_MS", 5000),
		HumanOnlyMaxWaitMs: getEnvAsInt("HUMAN_ONLY_MAX_WAIT_MS", 8000),

		TurnTimeLimitSeconds: getEnvAsInt("TURN_TIME_LIMIT_SECONDS", 60),
		MaxConnections:       getEnvAsInt("MAX_CONNECTIONS", 1000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the server misbehave.
func (c *Config) Validate() error {
	if c.TurnTimeLimitSeconds <= 0 {
		return fmt.Errorf("TURN_TIME_LIMIT_SECONDS must be positive")
	}
	if c.AIDelayMs < 0 || c.HumanOnlyMaxWaitMs < 0 {
		return fmt.Errorf("AI_DELAY_MS and HUMAN_ONLY_MAX_WAIT_MS must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
