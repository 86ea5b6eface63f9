// ABOUTME: Layered config loading with koanf: defaults, YAML file, environment.
// ABOUTME: HEALTHSCORE_* variables override the file; unknown variables are ignored.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HEALTHSCORE_"

	// ConfigPathEnvVar points at a config file when --config is not given.
	ConfigPathEnvVar = "HEALTHSCORE_CONFIG"
)

// envKeys maps the lower-cased variable name (prefix removed) to a koanf path.
var envKeys = map[string]string{
	"addr":                  "server.addr",
	"read_timeout":          "server.read_timeout",
	"write_timeout":         "server.write_timeout",
	"shutdown_timeout":      "server.shutdown_timeout",
	"db_path":               "database.path",
	"payload_soft_limit":    "payload.soft_limit",
	"payload_hard_limit":    "payload.hard_limit",
	"webhook_secret":        "webhook.secret",
	"webhook_rate_limit":    "webhook.rate_limit",
	"webhook_rate_window":   "webhook.rate_window",
	"backfill_workers":      "backfill.workers",
	"repair_enabled":        "repair.enabled",
	"repair_schedule":       "repair.schedule",
	"diagnostics_dir":       "diagnostics.dir",
	"diagnostics_in_memory": "diagnostics.in_memory",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"log_caller":            "logging.caller",
}

// Load builds the effective configuration. path is the --config flag value;
// when empty, HEALTHSCORE_CONFIG and then the XDG config path are tried, and
// a missing default file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	configPath, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolveConfigPath(flagPath string) (string, error) {
	explicit := flagPath
	if explicit == "" {
		explicit = os.Getenv(ConfigPathEnvVar)
	}
	if explicit != "" {
		explicit = ExpandPath(explicit)
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}

	def := GetConfigPath()
	if _, err := os.Stat(def); err != nil {
		return "", nil
	}
	return def, nil
}

func envTransform(key string) string {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envKeys[name]
}
