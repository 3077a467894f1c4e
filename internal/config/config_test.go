package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"talentcore/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retention != core.DefaultRetention {
		t.Fatalf("expected default retention, got %s", cfg.Retention)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Storage.Driver != "sqlite" || cfg.Notify.PublishTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.BlobConfig().Driver != "" {
		t.Fatalf("archive must be disabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TALENTCORE_STORAGE_DRIVER", "memory")
	t.Setenv("TALENTCORE_RETENTION", "48h")
	t.Setenv("TALENTCORE_NOTIFY_REDIS_ADDR", "redis:6379")
	t.Setenv("TALENTCORE_ARCHIVE_S3_PATH_STYLE", "true")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageSelector().Driver != core.StorageMemory {
		t.Fatalf("expected memory driver, got %s", cfg.Storage.Driver)
	}
	if cfg.Retention != 48*time.Hour || cfg.Notify.RedisAddr != "redis:6379" || !cfg.BlobConfig().S3.PathStyle {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talentcore.yaml")
	content := `
retention: 720h
storage:
  driver: postgres
  postgres-dsn: postgres://db/talentcore
archive:
  driver: s3
  s3:
    bucket: audits
http:
  allowed-origins: ["https://app.example"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageSelector().PostgresDSN != "postgres://db/talentcore" || cfg.Retention != 720*time.Hour {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.BlobConfig().S3.Bucket != "audits" || cfg.BlobConfig().S3.Region != "us-east-1" {
		t.Fatalf("unexpected archive config %+v", cfg.Archive)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{Retention: time.Hour, Storage: StorageConfig{Driver: "sqlite"}}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"retention", func(c *Config) { c.Retention = 0 }, "retention"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "postgres-dsn"},
		{"s3 bucket", func(c *Config) { c.Archive.Driver = "s3" }, "bucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env must be ignored: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TALENTCORE_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("TALENTCORE_TEST_DOTENV", "")
	_ = os.Unsetenv("TALENTCORE_TEST_DOTENV")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if os.Getenv("TALENTCORE_TEST_DOTENV") != "loaded" {
		t.Fatalf("expected variable from .env")
	}
}
