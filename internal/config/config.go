// Package config loads talentcore settings from an optional YAML file, a
// .env file and TALENTCORE_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"talentcore/internal/core"
	"talentcore/internal/infra/blob"
	"talentcore/internal/infra/blob/s3"
)

// EnvPrefix namespaces every environment variable.
const EnvPrefix = "TALENTCORE"

// Config is the full process configuration.
type Config struct {
	Debug     bool          `mapstructure:"debug"`
	JSON      bool          `mapstructure:"json"`
	Trace     bool          `mapstructure:"trace"`
	Retention time.Duration `mapstructure:"retention"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Storage   StorageConfig `mapstructure:"storage"`
	Notify    NotifyConfig  `mapstructure:"notify"`
	Archive   ArchiveConfig `mapstructure:"archive"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed-origins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown-grace"`
	DebugVars      bool          `mapstructure:"debug-vars"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite-path"`
	PostgresDSN string `mapstructure:"postgres-dsn"`
}

// NotifyConfig configures change notification fan-out.
type NotifyConfig struct {
	RedisAddr       string        `mapstructure:"redis-addr"`
	RedisPassword   string        `mapstructure:"redis-password"`
	RedisPrefix     string        `mapstructure:"redis-prefix"`
	WebhookURL      string        `mapstructure:"webhook-url"`
	WebhookSecret   string        `mapstructure:"webhook-secret"`
	PublishTimeout  time.Duration `mapstructure:"publish-timeout"`
	ExternalTimeout time.Duration `mapstructure:"external-timeout"`
}

// ArchiveConfig selects where anonymization exports are written.
type ArchiveConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs-root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config mirrors s3.Config for file and env binding.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access-key-id"`
	SecretAccessKey string `mapstructure:"secret-access-key"`
	PathStyle       bool   `mapstructure:"path-style"`
}

var defaults = map[string]any{
	"debug":                        false,
	"json":                         false,
	"trace":                        false,
	"retention":                    core.DefaultRetention,
	"http.addr":                    ":8080",
	"http.allowed-origins":         []string{},
	"http.shutdown-grace":          10 * time.Second,
	"http.debug-vars":              false,
	"storage.driver":               string(core.StorageSQLite),
	"storage.sqlite-path":          "talentcore.db",
	"storage.postgres-dsn":         "",
	"notify.redis-addr":            "",
	"notify.redis-password":        "",
	"notify.redis-prefix":          "talentcore",
	"notify.webhook-url":           "",
	"notify.webhook-secret":        "",
	"notify.publish-timeout":       2 * time.Second,
	"notify.external-timeout":      10 * time.Second,
	"archive.driver":               "",
	"archive.fs-root":              "./archive",
	"archive.s3.region":            "us-east-1",
	"archive.s3.bucket":            "",
	"archive.s3.endpoint":          "",
	"archive.s3.access-key-id":     "",
	"archive.s3.secret-access-key": "",
	"archive.s3.path-style":        false,
}

// Bind prepares v with defaults and environment lookup. Nested keys map to
// variables by upper-casing and replacing "." and "-" with "_", so
// storage.sqlite-path is TALENTCORE_STORAGE_SQLITE_PATH.
func Bind(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads path (default ".env") into the environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads cfgFile, or talentcore.yaml in the working directory when
// cfgFile is empty and that file exists, and decodes the result.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	Bind(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("talentcore")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres-dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Archive.Driver == "s3" && c.Archive.S3.Bucket == "" {
		return errors.New("archive.s3.bucket is required for the s3 archive")
	}
	return nil
}

// StorageSelector converts to the core store selector.
func (c Config) StorageSelector() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig converts to the archive store selector.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: c.Archive.Driver,
		FSRoot: c.Archive.FSRoot,
		S3: s3.Config{
			Region:          c.Archive.S3.Region,
			Bucket:          c.Archive.S3.Bucket,
			Endpoint:        c.Archive.S3.Endpoint,
			AccessKeyID:     c.Archive.S3.AccessKeyID,
			SecretAccessKey: c.Archive.S3.SecretAccessKey,
			PathStyle:       c.Archive.S3.PathStyle,
		},
	}
}
