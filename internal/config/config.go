// Package config loads engine configuration from a file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/dshills/coderetrieve/internal/embedder"
	"github.com/dshills/coderetrieve/internal/indexer"
	"github.com/dshills/coderetrieve/internal/logging"
	"github.com/dshills/coderetrieve/internal/searcher"
	"github.com/dshills/coderetrieve/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. CODERETRIEVE_SEARCH_WEIGHTS_TEXT
const EnvPrefix = "CODERETRIEVE"

// Config represents the complete configuration
type Config struct {
	Search   searcher.Config     `json:"search" mapstructure:"search"`
	Embedder embedder.DualConfig `json:"embedder" mapstructure:"embedder"`
	Store    storage.Config      `json:"store" mapstructure:"store"`
	Indexer  indexer.Config      `json:"indexer" mapstructure:"indexer"`
	Log      LogConfig           `json:"log" mapstructure:"log"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text or json
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Search: searcher.DefaultConfig(),
		Embedder: embedder.DualConfig{
			Text:      embedder.Config{CacheSize: 1000},
			Code:      embedder.Config{CacheSize: 1000},
			BatchSize: embedder.DefaultBatchSize,
		},
		Store: storage.Config{
			Backend: storage.BackendMemory,
		},
		Indexer: indexer.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path (YAML, JSON or TOML by extension) and
// applies CODERETRIEVE_* environment overrides. An empty path looks for
// coderetrieve.{yaml,json,toml} in the working directory and
// $HOME/.config/coderetrieve; finding none yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coderetrieve")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/coderetrieve")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of the default config so that environment
// variables can override keys absent from the file
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)

	// Optional keys have no default value but must still be bindable
	for _, key := range []string{"search.defaultMinScore"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			walkDefaults(v, key, sub)
			continue
		}
		if val != nil {
			v.SetDefault(key, val)
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Store.Backend) {
	case "", storage.BackendMemory, storage.BackendQdrant:
	case storage.BackendSQLite:
		if c.Store.Path == "" {
			return &ConfigError{Field: "store.path", Message: "required for the sqlite backend"}
		}
	default:
		return &ConfigError{Field: "store.backend", Message: "unknown backend " + c.Store.Backend}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: "must be text or json"}
	}
	if c.Indexer.Workers < 0 || c.Indexer.BatchSize < 0 {
		return &ConfigError{Field: "indexer", Message: "workers and batchSize must not be negative"}
	}
	return nil
}

// Logger builds the configured logger writing to w
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return logging.New(w, logging.LevelFromString(c.Log.Level), c.Log.Format)
}

// IndexerConfig returns the indexer configuration with collections aligned to the searcher
func (c *Config) IndexerConfig() indexer.Config {
	cfg := c.Indexer
	cfg.TextCollection = c.Search.TextCollection
	cfg.CodeCollection = c.Search.CodeCollection
	return cfg
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
