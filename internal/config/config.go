// ABOUTME: Service configuration sections with defaults and validation.
// ABOUTME: Paths support ~ expansion and fall back to the XDG data directory.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/storage"
	"gopkg.in/yaml.v3"
)

// Config stores healthscore configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server" yaml:"server"`
	Database    DatabaseConfig    `koanf:"database" yaml:"database"`
	Payload     PayloadConfig     `koanf:"payload" yaml:"payload"`
	Webhook     WebhookConfig     `koanf:"webhook" yaml:"webhook"`
	Backfill    BackfillConfig    `koanf:"backfill" yaml:"backfill"`
	Repair      RepairConfig      `koanf:"repair" yaml:"repair"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics" yaml:"diagnostics"`
	Logging     logging.Config    `koanf:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file. Empty means ~/.local/share/healthscore/healthscore.db.
	Path string `koanf:"path" yaml:"path"`
}

// PayloadConfig holds the webhook body size limits in bytes.
type PayloadConfig struct {
	SoftLimit int64 `koanf:"soft_limit" yaml:"soft_limit" validate:"gt=0"`
	HardLimit int64 `koanf:"hard_limit" yaml:"hard_limit" validate:"gtfield=SoftLimit"`
}

// WebhookConfig holds ingress settings for provider deliveries.
type WebhookConfig struct {
	// Secret enables signature verification when set.
	Secret     string        `koanf:"secret" yaml:"secret"`
	RateLimit  int           `koanf:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `koanf:"rate_window" yaml:"rate_window" validate:"gt=0"`
}

// BackfillConfig holds defaults for backfill runs.
type BackfillConfig struct {
	Workers int `koanf:"workers" yaml:"workers" validate:"gte=1,lte=64"`
}

// RepairConfig schedules re-aggregation of failed pairs.
type RepairConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Schedule string `koanf:"schedule" yaml:"schedule" validate:"required_if=Enabled true"`
}

// DiagnosticsConfig locates the failure sink and checkpoint store.
type DiagnosticsConfig struct {
	// Dir is the badger directory. Empty means <data dir>/diagnostics.
	Dir      string `koanf:"dir" yaml:"dir"`
	InMemory bool   `koanf:"in_memory" yaml:"in_memory"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Payload: PayloadConfig{
			SoftLimit: 30 << 20,
			HardLimit: 50 << 20,
		},
		Webhook: WebhookConfig{
			RateLimit:  120,
			RateWindow: time.Minute,
		},
		Backfill: BackfillConfig{Workers: 4},
		Repair: RepairConfig{
			Enabled:  true,
			Schedule: "@every 15m",
		},
		Logging: logging.DefaultConfig(),
	}
}

// DBPath returns the configured database path with ~ expanded.
func (c *Config) DBPath() string {
	if c.Database.Path == "" {
		return storage.DefaultDBPath()
	}
	return ExpandPath(c.Database.Path)
}

// DiagnosticsDir returns the badger directory, or "" for an in-memory store.
func (c *Config) DiagnosticsDir() string {
	if c.Diagnostics.InMemory {
		return ""
	}
	if c.Diagnostics.Dir == "" {
		return filepath.Join(storage.DataDir(), "diagnostics")
	}
	return ExpandPath(c.Diagnostics.Dir)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", strings.ToLower(fe.Namespace()), fe.Tag(), fe.Param()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	shown := *c
	if shown.Webhook.Secret != "" {
		shown.Webhook.Secret = "********"
	}
	return yaml.Marshal(&shown)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "healthscore", "config.yaml")
}
