// Package config loads the questlog configuration from defaults, an
// optional YAML file, and QUESTLOG_-prefixed environment variables, in
// that precedence order.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openretro/questlog/internal/lens"
)

// Config is the top-level questlog configuration.
type Config struct {
	Paths  PathsConfig  `koanf:"paths"`
	Engine EngineConfig `koanf:"engine"`
	Lens   LensConfig   `koanf:"lens"`
}

// PathsConfig locates the engine's files.
type PathsConfig struct {
	EventLog string `koanf:"event_log"`
	StateDB  string `koanf:"state_db"`
	SeedFile string `koanf:"seed_file"`
}

// EngineConfig holds ingestion settings.
type EngineConfig struct {
	MaxEvents int `koanf:"max_events"`
	// PlayOptions maps a PLAY option id to its requirement expression in
	// the rule IF grammar.
	PlayOptions map[string]string `koanf:"play_options"`
}

// LensConfig holds the world lens slices, keyed by slice id in YAML.
type LensConfig struct {
	Slices []lens.Slice `koanf:"slices"`
}

// Slice returns the configured slice with the given id.
func (c LensConfig) Slice(id string) (lens.Slice, bool) {
	for _, s := range c.Slices {
		if s.ID == id {
			return s, true
		}
	}
	return lens.Slice{}, false
}

// Load reads configuration from an optional YAML file path and the
// environment. QUESTLOG_PATHS__STATE_DB=/tmp/x.db overrides
// paths.state_db.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"paths.event_log":   "questlog-events.jsonl",
		"paths.state_db":    "questlog-state.db",
		"paths.seed_file":   "places.json",
		"engine.max_events": 256,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("QUESTLOG_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "QUESTLOG_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Engine.MaxEvents < 1 {
		return nil, fmt.Errorf("engine.max_events must be at least 1, got %d", cfg.Engine.MaxEvents)
	}
	return &cfg, nil
}
