// Package config loads supervisor configuration from TOML with env
// overrides for secrets.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tillerhq/tiller"
)

type Config struct {
	Providers map[string]ProviderConfig `toml:"providers"`
	Models    []ModelConfig             `toml:"models"`
	Routing   RoutingConfig             `toml:"routing"`
	Store     StoreConfig               `toml:"store"`
	Workspace WorkspaceConfig           `toml:"workspace"`
	Observer  ObserverConfig            `toml:"observer"`
}

type ProviderConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Anonymous bool   `toml:"anonymous"`
}

type ModelConfig struct {
	Provider         string   `toml:"provider"`
	Model            string   `toml:"model"`
	Classes          []string `toml:"classes"`
	LatencyRank      int      `toml:"latency_rank"`
	CostRank         int      `toml:"cost_rank"`
	MaxContextTokens int      `toml:"max_context_tokens"`
}

type RoutingConfig struct {
	PreferredProviders []string      `toml:"preferred_providers"`
	AllowFallback      bool          `toml:"allow_fallback"`
	Breaker            BreakerConfig `toml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold   int    `toml:"failure_threshold"`
	BaseCooldown       string `toml:"base_cooldown"`
	MaxCooldown        string `toml:"max_cooldown"`
	PenaltyPerFailure  int    `toml:"penalty_per_failure"`
	OpenCircuitPenalty int    `toml:"open_circuit_penalty"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type WorkspaceConfig struct {
	Root    string `toml:"root"`
	Preview bool   `toml:"preview"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Routing: RoutingConfig{AllowFallback: true},
		Store:   StoreConfig{Driver: "sqlite", Path: "tiller.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "tiller.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("TILLER_OPENAI_API_KEY"); v != "" {
		setProviderKey(&cfg, "openai", v)
	}
	if v := os.Getenv("TILLER_ANTHROPIC_API_KEY"); v != "" {
		setProviderKey(&cfg, "anthropic", v)
	}
	if v := os.Getenv("TILLER_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
		cfg.Store.Driver = "postgres"
	}
	if v := os.Getenv("TILLER_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if os.Getenv("TILLER_OBSERVER_ENABLED") == "true" || os.Getenv("TILLER_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	p := cfg.Providers[provider]
	p.APIKey = key
	cfg.Providers[provider] = p
}

// Profiles converts the [[models]] entries into catalog profiles.
func (c Config) Profiles() []tiller.ModelProfile {
	out := make([]tiller.ModelProfile, 0, len(c.Models))
	for _, m := range c.Models {
		classes := make([]tiller.ModelClass, 0, len(m.Classes))
		for _, cl := range m.Classes {
			classes = append(classes, tiller.ModelClass(cl))
		}
		out = append(out, tiller.ModelProfile{
			Provider:         m.Provider,
			Model:            m.Model,
			Classes:          classes,
			LatencyRank:      m.LatencyRank,
			CostRank:         m.CostRank,
			MaxContextTokens: m.MaxContextTokens,
		})
	}
	return out
}

// BreakerConfig converts the [routing.breaker] table. Invalid or missing
// durations fall back to the breaker defaults.
func (c Config) BreakerConfig() tiller.BreakerConfig {
	b := c.Routing.Breaker
	return tiller.BreakerConfig{
		FailureThreshold:   b.FailureThreshold,
		BaseCooldown:       parseDuration(b.BaseCooldown),
		MaxCooldown:        parseDuration(b.MaxCooldown),
		PenaltyPerFailure:  b.PenaltyPerFailure,
		OpenCircuitPenalty: b.OpenCircuitPenalty,
	}
}

// Preference builds the route preference from the [routing] table.
func (c Config) Preference() tiller.RoutePreference {
	return tiller.RoutePreference{
		PreferredProviders: c.Routing.PreferredProviders,
		AllowFallback:      c.Routing.AllowFallback,
	}
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
