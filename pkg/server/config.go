package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig is the resolved runtime configuration a ServerContext
// builds from.
type ServerConfig struct {
	ListenAddr            string
	DatabasePath          string
	MetricsAddr           string
	MaxConcurrentHandlers int
	TokenBucketCapacity   float64
	TokenBucketRefillRate float64
	ShutdownDrain         time.Duration
}

// DefaultConfig returns the baseline ServerConfig, overridden field by
// field by TOMLConfig.ToServerConfig.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:            ":7530",
		DatabasePath:          "~/.palisade/accounts.db",
		MetricsAddr:           ":9530",
		MaxConcurrentHandlers: 256,
		TokenBucketCapacity:   20,
		TokenBucketRefillRate: 5,
		ShutdownDrain:         5 * time.Second,
	}
}

// TOMLConfig mirrors the on-disk configuration file.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	ListenAddr   string `toml:"listen_addr"`
	DatabasePath string `toml:"database_path"`
	MetricsAddr  string `toml:"metrics_addr"`
}

type LimitsSection struct {
	MaxConcurrentHandlers int     `toml:"max_concurrent_handlers"`
	TokenBucketCapacity   float64 `toml:"token_bucket_capacity"`
	TokenBucketRefillRate float64 `toml:"token_bucket_refill_rate"`
	ShutdownDrainSeconds  int     `toml:"shutdown_drain_seconds"`
}

// DefaultTOMLConfig returns the default on-disk configuration.
func DefaultTOMLConfig() TOMLConfig {
	d := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			ListenAddr:   d.ListenAddr,
			DatabasePath: d.DatabasePath,
			MetricsAddr:  d.MetricsAddr,
		},
		Limits: LimitsSection{
			MaxConcurrentHandlers: d.MaxConcurrentHandlers,
			TokenBucketCapacity:   d.TokenBucketCapacity,
			TokenBucketRefillRate: d.TokenBucketRefillRate,
			ShutdownDrainSeconds:  int(d.ShutdownDrain.Seconds()),
		},
	}
}

// LoadConfig loads configuration from a TOML file at path, writing out
// the default file if none exists yet, and applies PALISADE_* environment
// overrides.
func LoadConfig(path string) (TOMLConfig, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if writeErr := writeDefaultConfig(expanded, config); writeErr != nil {
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(expanded, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies PALISADE_<SECTION>_<KEY> overrides on top of
// config.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if v := os.Getenv("PALISADE_SERVER_LISTEN_ADDR"); v != "" {
		config.Server.ListenAddr = v
	}
	if v := os.Getenv("PALISADE_SERVER_DATABASE_PATH"); v != "" {
		config.Server.DatabasePath = v
	}
	if v := os.Getenv("PALISADE_SERVER_METRICS_ADDR"); v != "" {
		config.Server.MetricsAddr = v
	}
	if v := os.Getenv("PALISADE_LIMITS_MAX_CONCURRENT_HANDLERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Limits.MaxConcurrentHandlers = n
		}
	}
	if v := os.Getenv("PALISADE_LIMITS_TOKEN_BUCKET_CAPACITY"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			config.Limits.TokenBucketCapacity = n
		}
	}
	if v := os.Getenv("PALISADE_LIMITS_TOKEN_BUCKET_REFILL_RATE"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			config.Limits.TokenBucketRefillRate = n
		}
	}
	if v := os.Getenv("PALISADE_LIMITS_SHUTDOWN_DRAIN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Limits.ShutdownDrainSeconds = n
		}
	}
	return config
}

func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# palisade server configuration\n# auto-generated with default values; restart the server after editing\n# environment overrides follow PALISADE_SECTION_KEY, e.g. PALISADE_SERVER_LISTEN_ADDR\n\n"); err != nil {
		return err
	}

	enc := toml.NewEncoder(f)
	return enc.Encode(config)
}

// ToServerConfig resolves a TOMLConfig into a ServerConfig, falling back
// to defaults for any zero-valued field.
func (c TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.ListenAddr) != "" {
		cfg.ListenAddr = c.Server.ListenAddr
	}
	if strings.TrimSpace(c.Server.DatabasePath) != "" {
		cfg.DatabasePath = c.Server.DatabasePath
	}
	if strings.TrimSpace(c.Server.MetricsAddr) != "" {
		cfg.MetricsAddr = c.Server.MetricsAddr
	}
	if c.Limits.MaxConcurrentHandlers != 0 {
		cfg.MaxConcurrentHandlers = c.Limits.MaxConcurrentHandlers
	}
	if c.Limits.TokenBucketCapacity != 0 {
		cfg.TokenBucketCapacity = c.Limits.TokenBucketCapacity
	}
	if c.Limits.TokenBucketRefillRate != 0 {
		cfg.TokenBucketRefillRate = c.Limits.TokenBucketRefillRate
	}
	if c.Limits.ShutdownDrainSeconds != 0 {
		cfg.ShutdownDrain = time.Duration(c.Limits.ShutdownDrainSeconds) * time.Second
	}

	return cfg
}

// GetDatabasePath returns the configured database path with ~ expanded.
func (c TOMLConfig) GetDatabasePath() (string, error) {
	return expandHome(c.Server.DatabasePath)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
