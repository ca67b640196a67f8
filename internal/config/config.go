// Package config reads all service configuration from environment variables,
// falling back to sensible local-development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full configuration surface shared by all entry points.
type Config struct {
	Env      string
	Port     string
	DB       Database
	Gateway  Gateway
	Provider Provider
	Worker   Worker
	// RetentionAge is how old an event may get before the cleanup command
	// deletes it.
	RetentionAge time.Duration
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL builds a postgres:// URL, used by the migration runner.
func (d Database) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Gateway holds notification gateway client settings.
type Gateway struct {
	URL     string
	Token   string
	OwnerID string
	Timeout time.Duration
}

// Provider holds upstream event provider client settings.
type Provider struct {
	URL     string
	Timeout time.Duration
}

// Worker holds outbox dispatcher loop settings.
type Worker struct {
	BatchSize    int
	PollInterval time.Duration
}

// Load reads configuration from well-known environment variables.
func Load() Config {
	return Config{
		Env:  getEnv("ENV", "local"),
		Port: getEnv("PORT", "8080"),
		DB: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "eventface"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Gateway: Gateway{
			URL:     getEnv("NOTIFICATIONS_API_URL", "http://localhost:9090/notifications"),
			Token:   getEnv("NOTIFICATIONS_API_TOKEN", ""),
			OwnerID: getEnv("NOTIFICATIONS_OWNER_ID", ""),
			Timeout: getEnvDuration("NOTIFICATIONS_TIMEOUT", 10*time.Second),
		},
		Provider: Provider{
			URL:     getEnv("EVENT_PROVIDER_API_URL", "http://localhost:9091/events"),
			Timeout: getEnvDuration("EVENT_PROVIDER_TIMEOUT", 30*time.Second),
		},
		Worker: Worker{
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
		},
		RetentionAge: getEnvDuration("EVENT_RETENTION_AGE", 7*24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
