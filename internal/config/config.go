// Package config provides configuration loading and structs for the bunmyaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Index      IndexConfig      `yaml:"index"`
	Window     WindowConfig     `yaml:"window"`
	Experience ExperienceConfig `yaml:"experience"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the key/value data directory and the resource database path.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
}

// IndexConfig maps scope names to snapshot keys under the data directory.
// A configured scope must have a snapshot before it can be read unless
// AllowMissingSnapshot is set; writers create missing snapshots either way.
type IndexConfig struct {
	Scopes               map[string]string `yaml:"scopes"`
	Dimensions           int               `yaml:"dimensions"`
	AllowMissingSnapshot bool              `yaml:"allow_missing_snapshot"`
	EagerLoad            bool              `yaml:"eager_load"`
}

// WindowConfig holds window assembly settings. ModelBudgets overrides the built-in table;
// a non-positive value removes a model.
type WindowConfig struct {
	ReservedOutputTokens int            `yaml:"reserved_output_tokens"`
	ModelBudgets         map[string]int `yaml:"model_budgets"`
}

// ExperienceConfig holds experience injection settings.
type ExperienceConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Scopes        []string `yaml:"scopes"`
	Threshold     float64  `yaml:"threshold"`
	PerScopeLimit int      `yaml:"per_scope_limit"`
	Limit         int      `yaml:"limit"`
	MaxTokens     int      `yaml:"max_tokens"`
}

// EmbeddingConfig holds query embedder settings.
type EmbeddingConfig struct {
	Dimensions int `yaml:"dimensions"`
	CacheSize  int `yaml:"cache_size"`
}

// WatchConfig holds snapshot watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the debounce interval as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or the result is inconsistent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	if cfg.Storage.DatabasePath != ":memory:" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-section consistency.
func (c *Config) Validate() error {
	if c.Window.ReservedOutputTokens <= 0 {
		return fmt.Errorf("window.reserved_output_tokens must be positive, got %d", c.Window.ReservedOutputTokens)
	}
	if c.Experience.Threshold < -1 || c.Experience.Threshold > 1 {
		return fmt.Errorf("experience.threshold must be within [-1, 1], got %v", c.Experience.Threshold)
	}
	for _, scope := range c.Experience.Scopes {
		if _, ok := c.Index.Scopes[scope]; !ok {
			return fmt.Errorf("experience scope %q is not configured under index.scopes", scope)
		}
	}
	for name, key := range c.Index.Scopes {
		if name == "" || key == "" {
			return fmt.Errorf("index scope %q has an empty name or key", name)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
