// Package config loads ucdiagram settings.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. UCDIAGRAM_DB_PATH.
const EnvPrefix = "UCDIAGRAM_"

// FileNames are searched in the working directory when no --config is given.
var FileNames = []string{"ucdiagram.yaml", "ucdiagram.yml"}

// Config holds all ucdiagram settings.
type Config struct {
	ListenAddr      string      `koanf:"listen_addr"`
	DBPath          string      `koanf:"db_path"`
	LogLevel        string      `koanf:"log_level"`
	LogFormat       string      `koanf:"log_format"`
	MermaidASCIIBin string      `koanf:"mermaid_ascii_bin"`
	Maintenance     Maintenance `koanf:"maintenance"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// Maintenance schedules store housekeeping. Empty cron expressions disable a job.
type Maintenance struct {
	VacuumCron     string        `koanf:"vacuum_cron"`
	PruneCron      string        `koanf:"prune_cron"`
	EventRetention time.Duration `koanf:"event_retention"`
}

// Scheduler converts the maintenance section for the scheduler.
func (m Maintenance) Scheduler() scheduler.MaintenanceConfig {
	return scheduler.MaintenanceConfig{
		VacuumCron:     m.VacuumCron,
		PruneCron:      m.PruneCron,
		EventRetention: m.EventRetention,
	}
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"listen_addr":                 ":4200",
		"db_path":                     filepath.Join(dataDir(), "ucdiagram.db"),
		"log_level":                   "info",
		"log_format":                  "text",
		"mermaid_ascii_bin":           "mermaid-ascii",
		"maintenance.vacuum_cron":     "@weekly",
		"maintenance.prune_cron":      "@daily",
		"maintenance.event_retention": "720h",
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ucdiagram"
	}
	return filepath.Join(home, ".ucdiagram")
}

// flagKeys maps flag names that differ from their config key.
var flagKeys = map[string]string{
	"listen": "listen_addr",
	"db":     "db_path",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default ucdiagram.yaml in the working directory)")
	fs.String("listen", "", "HTTP listen address")
	fs.String("db", "", "libsql database path")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: text or json")
}

// Load layers defaults, the config file, UCDIAGRAM_* env vars and explicitly
// set flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	var explicit string
	if flags != nil {
		explicit, _ = flags.GetString("config")
	}
	path, err := findConfigFile(explicit)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns UCDIAGRAM_MAINTENANCE_PRUNE_CRON into maintenance.prune_cron.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "maintenance_"); ok {
		return "maintenance." + rest
	}
	return key
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks field values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.Maintenance.EventRetention < 0 {
		return fmt.Errorf("maintenance.event_retention must not be negative")
	}
	return nil
}

// Diff describes what changed between two configurations.
type Diff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

// Compare reports the differences between old and new.
func Compare(old, new Config) Diff {
	var d Diff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.Maintenance != new.Maintenance {
		d.RestartNeeded = append(d.RestartNeeded, "maintenance")
	}
	return d
}
