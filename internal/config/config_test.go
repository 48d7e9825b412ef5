package config_test

import (
	"os"
	"testing"

	"pbxcore/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "LOG_LEVEL",
		"PBXCORE_STORAGE_DRIVER", "PBXCORE_SQLITE_PATH", "PBXCORE_POSTGRES_DSN",
		"PBXCORE_REDIS_URL", "PBXCORE_EVENT_PREFIX",
		"PBXCORE_ARCHIVE_DRIVER", "PBXCORE_METRICS_PORT",
	} {
		// t.Setenv registers restoration; the unset makes LookupEnv miss.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "production" || cfg.LogLevel != "info" {
		t.Fatalf("ambient defaults missing: %+v", cfg)
	}
	if cfg.StorageDriver != "sqlite" || cfg.SQLitePath != "pbxcore.db" {
		t.Fatalf("storage defaults missing: %+v", cfg)
	}
	if cfg.EventPrefix != "pbxcore" || cfg.ArchiveDriver != "fs" {
		t.Fatalf("event and archive defaults missing: %+v", cfg)
	}
	if cfg.Server.MetricsPort != "9815" {
		t.Fatalf("metrics port default missing: %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PBXCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("PBXCORE_POSTGRES_DSN", "postgres://localhost/pbxcore_test")
	t.Setenv("PBXCORE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PBXCORE_EVENT_PREFIX", "pbxtest")
	t.Setenv("PBXCORE_METRICS_PORT", "9999")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "development" || cfg.LogLevel != "debug" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if cfg.StorageDriver != "postgres" || cfg.PostgresDSN != "postgres://localhost/pbxcore_test" {
		t.Fatalf("storage settings not applied: %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" || cfg.EventPrefix != "pbxtest" {
		t.Fatalf("event settings not applied: %+v", cfg)
	}
	if cfg.Server.MetricsPort != "9999" {
		t.Fatalf("metrics port not applied: %+v", cfg)
	}
}
