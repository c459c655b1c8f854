package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Engine describes one chat engine the worker can drive.
type Engine struct {
	// Name is the engine identifier used throughout the queue.
	Name string `mapstructure:"name"`
	// URL is the engine's chat page.
	URL string `mapstructure:"url"`
	// Cooldown is the base per-engine spacing between requests.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Enabled engines are fetched and dispatched; disabled ones are
	// kept in the file for quick toggling.
	Enabled bool `mapstructure:"enabled"`
}

// enginesFile is the engines.yml shape.
type enginesFile struct {
	Engines []map[string]any `yaml:"engines"`
}

// DefaultEngines is used when no engines.yml exists.
func DefaultEngines() []Engine {
	return []Engine{
		{Name: "chatgpt", URL: "https://chatgpt.com", Cooldown: 30 * time.Second, Enabled: true},
		{Name: "perplexity", URL: "https://www.perplexity.ai", Cooldown: 20 * time.Second, Enabled: true},
		{Name: "gemini", URL: "https://gemini.google.com", Cooldown: 15 * time.Second, Enabled: true},
		{Name: "grok", URL: "https://grok.com", Cooldown: 15 * time.Second, Enabled: true},
	}
}

// LoadEngines reads engine definitions from a YAML file. A missing file
// falls back to the defaults; a malformed one is an error.
func LoadEngines(path string) ([]Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultEngines(), nil
		}
		return nil, fmt.Errorf("read engines file: %w", err)
	}

	var file enginesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse engines file: %w", err)
	}

	engines := make([]Engine, 0, len(file.Engines))
	for i, raw := range file.Engines {
		engine := Engine{Enabled: true, Cooldown: 15 * time.Second}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
			Result:     &engine,
		})
		if err != nil {
			return nil, fmt.Errorf("build engine decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode engine %d: %w", i, err)
		}
		if engine.Name == "" {
			return nil, fmt.Errorf("engine %d: name is required", i)
		}
		engines = append(engines, engine)
	}

	if len(engines) == 0 {
		return DefaultEngines(), nil
	}
	return engines, nil
}

// EnabledNames returns the names of enabled engines, preserving file
// order.
func EnabledNames(engines []Engine) []string {
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		if e.Enabled {
			names = append(names, e.Name)
		}
	}
	return names
}

// CooldownMap builds the engine→cooldown map for the tracker.
func CooldownMap(engines []Engine) map[string]time.Duration {
	cooldowns := make(map[string]time.Duration, len(engines))
	for _, e := range engines {
		if e.Enabled {
			cooldowns[e.Name] = e.Cooldown
		}
	}
	return cooldowns
}
