package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level quill configuration, shared by the CLI, the sync
// core, and the dev server.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Database DatabaseConfig `yaml:"database"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Sync     SyncConfig     `yaml:"sync"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig captures account storage configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SecretsConfig locates the key used to seal API credentials at rest.
type SecretsConfig struct {
	KeyPath string `yaml:"key_path"`
}

// SyncConfig tunes the per-account event loop.
type SyncConfig struct {
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// ServerConfig holds settings for the built-in dev server.
type ServerConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	JWT              JWTConfig     `yaml:"jwt"`
	LongPollTimeout  time.Duration `yaml:"long_poll_timeout"`
	QueueTTL         time.Duration `yaml:"queue_ttl"`
	MaxUploadSizeMiB int           `yaml:"max_upload_size_mib"`
}

// JWTConfig defines queue token issuance parameters.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	Expiration time.Duration `yaml:"expiration"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration from an optional YAML file, environment
// variable overrides, and defaults, in that order of increasing precedence.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// fall through to env and defaults
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DataDir, "QUILL_DATA_DIR")
	setString(&c.Database.Path, "QUILL_DB_PATH")
	setString(&c.Secrets.KeyPath, "QUILL_KEY_PATH")
	setDuration(&c.Sync.PollTimeout, "QUILL_POLL_TIMEOUT")
	setDuration(&c.Sync.BackoffInitial, "QUILL_BACKOFF_INITIAL")
	setDuration(&c.Sync.BackoffMax, "QUILL_BACKOFF_MAX")
	setString(&c.Server.ListenAddr, "QUILL_LISTEN_ADDR")
	setString(&c.Server.JWT.Secret, "QUILL_JWT_SECRET")
	setString(&c.Server.JWT.Issuer, "QUILL_JWT_ISSUER")
	setDuration(&c.Server.JWT.Expiration, "QUILL_JWT_EXPIRATION")
	setDuration(&c.Server.LongPollTimeout, "QUILL_LONG_POLL_TIMEOUT")
	setDuration(&c.Server.QueueTTL, "QUILL_QUEUE_TTL")
	setInt(&c.Server.MaxUploadSizeMiB, "QUILL_MAX_UPLOAD_MIB")
	setString(&c.Logging.Level, "QUILL_LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "quill.db")
	}
	if c.Secrets.KeyPath == "" {
		c.Secrets.KeyPath = filepath.Join(c.DataDir, "quill.key")
	}
	if c.Sync.PollTimeout == 0 {
		c.Sync.PollTimeout = 90 * time.Second
	}
	if c.Sync.BackoffInitial == 0 {
		c.Sync.BackoffInitial = time.Second
	}
	if c.Sync.BackoffMax == 0 {
		c.Sync.BackoffMax = 30 * time.Second
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":9991"
	}
	if c.Server.JWT.Secret == "" {
		c.Server.JWT.Secret = "replace-me"
	}
	if c.Server.JWT.Issuer == "" {
		c.Server.JWT.Issuer = "quill-dev"
	}
	if c.Server.JWT.Expiration == 0 {
		c.Server.JWT.Expiration = 24 * time.Hour
	}
	if c.Server.LongPollTimeout == 0 {
		c.Server.LongPollTimeout = 55 * time.Second
	}
	if c.Server.QueueTTL == 0 {
		c.Server.QueueTTL = 10 * time.Minute
	}
	if c.Server.MaxUploadSizeMiB == 0 {
		c.Server.MaxUploadSizeMiB = 25
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "quill")
	}
	return ".quill"
}

func setString(dst *string, key string) {
	if env, ok := os.LookupEnv(key); ok {
		*dst = env
	}
}

func setDuration(dst *time.Duration, key string) {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			*dst = parsed
		}
	}
}
