// Package config provides configuration loading and structs for semdup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// IndexConfig selects the source tree and how it is chunked.
type IndexConfig struct {
	Root           string   `yaml:"root"`
	Extensions     []string `yaml:"extensions"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	MaxFileSize    int64    `yaml:"max_file_size"`
	MinChunkLines  int      `yaml:"min_chunk_lines"`
	MaxChunkLines  int      `yaml:"max_chunk_lines"`
}

// StorageConfig holds the directory the three stores are persisted under.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig selects the embedding provider. The API key is never read from
// this file; it comes from OPENAI_API_KEY.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
}

// SearchConfig holds defaults for similarity queries.
type SearchConfig struct {
	DefaultK         int     `yaml:"default_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// Default returns a config with every default applied, for runs without a config file.
// Relative paths are resolved against the working directory.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if wd, err := os.Getwd(); err == nil {
		cfg.Index.Root = expandPath(cfg.Index.Root, wd)
		cfg.Storage.Dir = expandPath(cfg.Storage.Dir, wd)
	}
	return cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Index.Root = expandPath(cfg.Index.Root, configDir)
	cfg.Storage.Dir = expandPath(cfg.Storage.Dir, configDir)

	return &cfg, nil
}

// Validate reports settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Index.MinChunkLines > c.Index.MaxChunkLines {
		return fmt.Errorf("min_chunk_lines %d exceeds max_chunk_lines %d", c.Index.MinChunkLines, c.Index.MaxChunkLines)
	}
	if c.Search.DefaultThreshold < -1 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("default_threshold %v outside [-1, 1]", c.Search.DefaultThreshold)
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

// expandPath converts a path to absolute. Paths starting with "./" (or ".") are relative
// to configDir; other relative paths are relative to the home directory.
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
