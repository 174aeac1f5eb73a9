// Package config loads the optional .srclib-basic.yml file found at the
// root of an indexed tree, plus environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the root of a tree.
const FileName = ".srclib-basic.yml"

// Environment overrides.
const (
	EnvLogLevel    = "SRCLIB_BASIC_LOG_LEVEL"
	EnvParallelism = "SRCLIB_BASIC_PARALLELISM"
	EnvDB          = "SRCLIB_BASIC_DB"
)

// Language holds per-language file collection overrides. Patterns use
// gitignore syntax and are matched against root-relative paths.
type Language struct {
	Disabled   bool     `yaml:"disabled"`
	Extensions []string `yaml:"extensions"`
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`
	Blockers   []string `yaml:"blockers"`
}

type Config struct {
	LogLevel    string              `yaml:"log_level"`
	Parallelism int                 `yaml:"parallelism"`
	DB          string              `yaml:"db"`
	Languages   map[string]Language `yaml:"languages"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Languages: map[string]Language{},
	}
}

// Load reads the YAML file at path. A missing file yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Languages == nil {
		cfg.Languages = map[string]Language{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir loads root/.env into the process environment (existing variables
// win), then root/.srclib-basic.yml, then applies environment overrides.
func LoadDir(root string) (*Config, error) {
	envPath := filepath.Join(root, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}
	cfg, err := Load(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := getenv(EnvParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvParallelism, err)
		}
		c.Parallelism = n
	}
	return c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", c.Parallelism)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Language returns the overrides for name; the zero value if none.
func (c *Config) Language(name string) Language {
	if c == nil {
		return Language{}
	}
	return c.Languages[name]
}
