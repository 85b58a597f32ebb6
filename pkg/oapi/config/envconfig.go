package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type EnvConfig struct {
	Port        string `envconfig:"PORT" default:"9200"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"omex"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"omex"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Optional Valkey/Redis cache for the workflow form schemas. Left
	// empty, an in-memory cache is used.
	ValkeyAddr     string `envconfig:"VALKEY_ADDR"`
	ValkeyPassword string `envconfig:"VALKEY_PASSWORD"`
	ValkeyDB       int    `envconfig:"VALKEY_DB" default:"0"`

	SchemaCacheTTL int `envconfig:"SCHEMA_CACHE_TTL" default:"300"` // seconds

	// Step delay of the simulated orchestrator backend, in milliseconds.
	OrchestratorStepDelayMS int `envconfig:"ORCHESTRATOR_STEP_DELAY_MS" default:"1000"`
}

func (c *EnvConfig) IsDev() bool {
	return c.Environment != "production"
}

func ValidateEnv() (*EnvConfig, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("✓ Loaded .env file")
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var errors []string

	if cfg.DBHost == "" {
		errors = append(errors, "  ❌ DB_HOST must not be empty")
	}
	if cfg.SchemaCacheTTL < 0 {
		errors = append(errors, "  ❌ SCHEMA_CACHE_TTL must not be negative")
	}
	if cfg.OrchestratorStepDelayMS < 0 {
		errors = append(errors, "  ❌ ORCHESTRATOR_STEP_DELAY_MS must not be negative")
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return &cfg, nil
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Database: %s@%s:%d/%s (sslmode=%s)\n", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
	fmtr("  DB Password: %s\n", MaskSecret(c.DBPassword))

	if c.ValkeyAddr != "" {
		fmtr("  Schema cache: valkey at %s (db %d, ttl %ds)\n", c.ValkeyAddr, c.ValkeyDB, c.SchemaCacheTTL)
	} else {
		fmtr("  Schema cache: in-memory (ttl %ds)\n", c.SchemaCacheTTL)
	}
}
