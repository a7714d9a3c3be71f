// Package config loads and validates the resolved run configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Simulation   Simulation   `yaml:"simulation"`
	World        World        `yaml:"world"`
	Agents       Agents       `yaml:"agents"`
	LLM          LLM          `yaml:"llm"`
	Perturbation Perturbation `yaml:"perturbation"`
	Metrics      Metrics      `yaml:"metrics"`
}

type Simulation struct {
	Seed          int64 `yaml:"seed"`
	Ticks         int   `yaml:"ticks"`
	TickDelayMs   int   `yaml:"tick_delay_ms"`
	SnapshotEvery int   `yaml:"snapshot_every"`
}

type World struct {
	GridSize int  `yaml:"grid_size"`
	Toroidal bool `yaml:"toroidal"`
	Food     Food `yaml:"food"`
}

type Food struct {
	MinSources int `yaml:"min_sources"`
	MaxSources int `yaml:"max_sources"`
	// Per-tick spawn probability is spawn_rate * grid_size^2, so larger
	// worlds spawn proportionally more per check. Calibrate per grid size.
	SpawnRate float64 `yaml:"spawn_rate"`
	DecayRate float64 `yaml:"decay_rate"`
	SizeMin   int     `yaml:"size_min"`
	SizeMax   int     `yaml:"size_max"`
}

type Agents struct {
	Count              int     `yaml:"count"`
	EnergyStart        float64 `yaml:"energy_start"`
	EnergyMax          float64 `yaml:"energy_max"`
	EnergyDrainPerTick float64 `yaml:"energy_drain_per_tick"`
	EnergyPerMove      float64 `yaml:"energy_per_move"`
	EnergyPerFlee      float64 `yaml:"energy_per_flee"`
	EnergyPerAttack    float64 `yaml:"energy_per_attack"`
	EnergyPerRest      float64 `yaml:"energy_per_rest"`
	EnergyPerRecall    float64 `yaml:"energy_per_recall"`
	EnergyPerRemember  float64 `yaml:"energy_per_remember"`
	EnergyPerCompact   float64 `yaml:"energy_per_compact"`
	EnergyPerSignal    float64 `yaml:"energy_per_signal"`
	EnergyPerObserve   float64 `yaml:"energy_per_observe"`
	EatRate            float64 `yaml:"eat_rate"`
	VisionRange        int     `yaml:"vision_range"`
	CommRange          int     `yaml:"comm_range"`
	FoodValue          float64 `yaml:"food_value"`
	RecallMaxResults   int     `yaml:"recall_max_results"`
	CombatRiskFactor   float64 `yaml:"combat_risk_factor"`
}

type LLM struct {
	Provider            string  `yaml:"provider"`
	Model               string  `yaml:"model"`
	CompactionModel     string  `yaml:"compaction_model"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	RetryMax            int     `yaml:"retry_max"`
	RetryBackoffBase    float64 `yaml:"retry_backoff_base"`
	MaxConcurrentAgents int     `yaml:"max_concurrent_agents"`
	OllamaBaseURL       string  `yaml:"ollama_base_url"`
	APIKey              string  `yaml:"api_key"`
}

type Perturbation struct {
	Enabled   bool               `yaml:"enabled"`
	StartTick int                `yaml:"start_tick"`
	Rate      float64            `yaml:"rate"`
	Types     map[string]float64 `yaml:"types"`
}

type Metrics struct {
	ExtractEvery int `yaml:"extract_every"`
}

// Providers the factory in internal/llm knows how to build.
var knownProviders = map[string]bool{
	"claude_code":   true,
	"anthropic_api": true,
	"openai_api":    true,
	"local_ollama":  true,
	"mock":          true,
}

func Defaults() Config {
	return Config{
		Simulation: Simulation{
			Seed:          42,
			Ticks:         100,
			SnapshotEvery: 100,
		},
		World: World{
			GridSize: 30,
			Toroidal: true,
			Food: Food{
				MinSources: 5,
				MaxSources: 12,
				SpawnRate:  0.0002,
				DecayRate:  0.5,
				SizeMin:    30,
				SizeMax:    80,
			},
		},
		Agents: Agents{
			Count:              6,
			EnergyStart:        80,
			EnergyMax:          100,
			EnergyDrainPerTick: 1,
			EnergyPerMove:      2,
			EnergyPerFlee:      4,
			EnergyPerAttack:    5,
			EnergyPerRest:      0.5,
			EnergyPerRecall:    1,
			EnergyPerRemember:  1,
			EnergyPerCompact:   2,
			EnergyPerSignal:    1,
			EnergyPerObserve:   1,
			EatRate:            50,
			VisionRange:        3,
			CommRange:          5,
			FoodValue:          80,
			RecallMaxResults:   3,
			CombatRiskFactor:   0.3,
		},
		LLM: LLM{
			Provider:            "claude_code",
			Model:               "haiku",
			CompactionModel:     "sonnet",
			TimeoutSeconds:      30,
			RetryMax:            3,
			RetryBackoffBase:    2,
			MaxConcurrentAgents: 6,
			OllamaBaseURL:       "http://localhost:11434",
		},
		Perturbation: Perturbation{
			StartTick: 0,
			Rate:      0.05,
		},
		Metrics: Metrics{ExtractEvery: 1},
	}
}

// Load reads a yaml config file on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the resolved config into the run data directory so that
// prep/apply and resume re-derive identical state.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (c Config) Validate() error {
	if !knownProviders[c.LLM.Provider] {
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.World.GridSize <= 0 {
		return fmt.Errorf("world grid_size must be positive, got %d", c.World.GridSize)
	}
	if c.World.Food.MaxSources <= 0 {
		return fmt.Errorf("food max_sources must be positive, got %d", c.World.Food.MaxSources)
	}
	if c.World.Food.MinSources > c.World.Food.MaxSources {
		return fmt.Errorf("food min_sources %d exceeds max_sources %d",
			c.World.Food.MinSources, c.World.Food.MaxSources)
	}
	if c.World.Food.SizeMin > c.World.Food.SizeMax {
		return fmt.Errorf("food size_min %d exceeds size_max %d",
			c.World.Food.SizeMin, c.World.Food.SizeMax)
	}
	if c.Agents.Count <= 0 {
		return fmt.Errorf("agents count must be positive, got %d", c.Agents.Count)
	}
	if c.Simulation.Ticks <= 0 {
		return fmt.Errorf("simulation ticks must be positive, got %d", c.Simulation.Ticks)
	}
	if c.Simulation.SnapshotEvery <= 0 {
		return fmt.Errorf("snapshot_every must be positive, got %d", c.Simulation.SnapshotEvery)
	}
	if c.LLM.MaxConcurrentAgents <= 0 {
		return fmt.Errorf("max_concurrent_agents must be positive, got %d", c.LLM.MaxConcurrentAgents)
	}
	if c.Metrics.ExtractEvery <= 0 {
		return fmt.Errorf("metrics extract_every must be positive, got %d", c.Metrics.ExtractEvery)
	}
	if c.Perturbation.Rate < 0 || c.Perturbation.Rate > 1 {
		return fmt.Errorf("perturbation rate must be in [0,1], got %g", c.Perturbation.Rate)
	}
	return nil
}
