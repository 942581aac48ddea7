// Package config provides configuration handling for the recipe engine.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the engine's global configuration: trust store location,
// cache directory/TTL, and scheduling defaults (spec §6.3 "options",
// §6.4 Trust store, §6.5 Cache).
type Config struct {
	Trust      TrustConfig      `yaml:"trust"`
	Cache      CacheConfig      `yaml:"cache"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
}

// TrustConfig locates the persistent trust store (spec §6.4).
type TrustConfig struct {
	StorePath string `yaml:"store_path"`
}

// CacheConfig locates and bounds the on-disk source cache (spec §6.5).
type CacheConfig struct {
	Dir    string `yaml:"dir"`
	TTLHrs int    `yaml:"ttl_hours"`
}

// SchedulingConfig carries the scheduler's whole-engine defaults, used
// when a recipe's own `settings` block and the caller's options both
// leave a field unset (spec §4.6 "Inputs", §6.1 `settings`).
type SchedulingConfig struct {
	MaxParallelSteps int `yaml:"max_parallel_steps"`
	DefaultTimeoutMs int `yaml:"default_timeout_ms"`
}

// DefaultConfig returns the engine's built-in defaults, used before any
// config file or environment override is applied.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Trust: TrustConfig{
			StorePath: filepath.Join(home, ".config", "reciper", "trust.json"),
		},
		Cache: CacheConfig{
			Dir:    filepath.Join(home, ".cache", "reciper", "sources"),
			TTLHrs: 24,
		},
		Scheduling: SchedulingConfig{
			MaxParallelSteps: 4,
			DefaultTimeoutMs: 0,
		},
	}
}

// Load loads configuration from the default discovery locations: a
// project-local `.reciper.yml` or `.reciper.yaml`, then
// `~/.config/reciper/config.yml`, then `~/.reciper.yml` — first one found
// wins (spec §6.4/§6.5 "process-external store"/"on-disk cache", located
// the way the teacher's config resolves its own file).
func Load() (*Config, error) {
	cfg := DefaultConfig()
	home, _ := os.UserHomeDir()

	configPaths := []string{
		".reciper.yml",
		".reciper.yaml",
		filepath.Join(home, ".config", "reciper", "config.yml"),
		filepath.Join(home, ".reciper.yml"),
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.loadFromEnv()
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, still applying
// environment overrides afterward.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		return nil, err
	}
	cfg.loadFromEnv()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv overrides the assembled config with RECIPER_* environment
// variables, the teacher's own env-override pattern repointed at engine
// settings instead of AI provider settings.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("RECIPER_TRUST_STORE_PATH"); v != "" {
		c.Trust.StorePath = v
	}
	if v := os.Getenv("RECIPER_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("RECIPER_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLHrs = n
		}
	}
	if v := os.Getenv("RECIPER_MAX_PARALLEL_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduling.MaxParallelSteps = n
		}
	}
	if v := os.Getenv("RECIPER_DEFAULT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduling.DefaultTimeoutMs = n
		}
	}
}

// Save writes the configuration to a file, in the same YAML shape Load
// reads back.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
