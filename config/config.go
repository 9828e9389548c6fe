package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/metrics"
	"github.com/gridflex/flexcore/core/scheduler"
	"github.com/gridflex/flexcore/infra/mqtt"
	"github.com/gridflex/flexcore/infra/store"
)

// Config is the full service configuration. It is threaded explicitly
// through app wiring; there is no package-level default instance.
type Config struct {
	Logging   LoggingConfig        `json:"logging"`
	Scheduler scheduler.Config     `json:"scheduler"`
	Solver    factory.ModuleConfig `json:"solver"`
	Store     StoreConfig          `json:"store"`
	MQTT      mqtt.Config          `json:"mqtt"`
	Metrics   metrics.Config       `json:"metrics"`
	Workers   WorkerConfig         `json:"workers"`
}

// StoreConfig selects the belief store implementation.
type StoreConfig struct {
	// Type is "memory" or "postgres".
	Type     string       `json:"type"`
	Postgres store.Config `json:"postgres"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "memory"
	}
}

func (c StoreConfig) Validate() error {
	switch c.Type {
	case "memory":
		return nil
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("store: postgres requires a dsn")
		}
		return nil
	}
	return fmt.Errorf("store: unknown type %s", c.Type)
}

// WorkerConfig sizes the scheduling worker pool.
type WorkerConfig struct {
	Count int `json:"count"`
	Queue int `json:"queue"`
}

func (c *WorkerConfig) SetDefaults() {
	if c.Count == 0 {
		c.Count = 4
	}
	if c.Queue == 0 {
		c.Queue = 16
	}
}

func (c WorkerConfig) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("workers: count must be >= 1")
	}
	if c.Queue < 1 {
		return fmt.Errorf("workers: queue must be >= 1")
	}
	return nil
}

// Load reads the configuration file (json or yaml by extension) and applies
// FLEX_ environment overrides, e.g. FLEX_WORKERS__COUNT=8.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// The callback rewrites FLEX_WORKERS__COUNT to workers.count, so the
	// provider must unflatten by "." to merge into the nested config map.
	if err := k.Load(env.Provider("FLEX_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "flex_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Logging.SetDefaults()
	cfg.Scheduler.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Workers.SetDefaults()
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Workers.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
