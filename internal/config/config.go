// Package config builds the process configuration from a .env file and
// environment variables.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ServerConfig holds the listen port of the metrics and health sidecar.
type ServerConfig struct {
	MetricsPort string
}

// Config holds the full process configuration.
type Config struct {
	Env      string
	LogLevel string

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	RedisURL    string
	EventPrefix string

	ArchiveDriver string

	Server ServerConfig
}

// Load reads the .env file (when present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg := &Config{
		Env:      getEnv("ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StorageDriver: getEnv("PBXCORE_STORAGE_DRIVER", "sqlite"),
		SQLitePath:    getEnv("PBXCORE_SQLITE_PATH", "pbxcore.db"),
		PostgresDSN:   getEnv("PBXCORE_POSTGRES_DSN", ""),

		RedisURL:    getEnv("PBXCORE_REDIS_URL", ""),
		EventPrefix: getEnv("PBXCORE_EVENT_PREFIX", "pbxcore"),

		ArchiveDriver: getEnv("PBXCORE_ARCHIVE_DRIVER", "fs"),

		Server: ServerConfig{
			MetricsPort: getEnv("PBXCORE_METRICS_PORT", "9815"),
		},
	}
	return cfg, nil
}

// getEnv reads an environment variable, falling back when unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
