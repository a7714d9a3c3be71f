package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"savannah.ai/internal/config"
	"savannah.ai/internal/persistence/metrics"
	"savannah.ai/internal/persistence/snapshot"
	"savannah.ai/internal/sim/action"
	"savannah.ai/internal/sim/perturb"
)

// Team mode splits a tick around an external coordinator that runs the
// inference itself: Prep writes the prompts, the coordinator gathers
// responses, Apply finishes the tick. Both halves reconstruct state from disk
// so the coordinator can call them as separate processes.

// missingResponse substitutes for an agent the coordinator returned nothing
// for.
const missingResponse = "ACTION: rest\nWORKING: \nREASONING: no response"

// PromptsFile is what Prep writes for the coordinator. An empty Alive list
// means extinction; the coordinator should stop.
type PromptsFile struct {
	Tick    int               `json:"tick"`
	Alive   []string          `json:"alive"`
	Prompts map[string]string `json:"prompts"`
}

// Status summarizes the roster after Apply.
type Status struct {
	Tick  int `json:"tick"`
	Alive int `json:"alive"`
	Dead  int `json:"dead"`
}

// LoadRunConfig reads the resolved config Setup saved into the run directory.
func LoadRunConfig(dataDir string) (config.Config, error) {
	return config.Load(filepath.Join(dataDir, "config.yaml"))
}

// Prep runs the pre-inference half of a tick: reconstruct state, perturb,
// build prompts, write team/tick_<N>_prompts.json.
func Prep(dataDir string, tick int) error {
	cfg, err := LoadRunConfig(dataDir)
	if err != nil {
		return err
	}
	e, err := FromCheckpoint(cfg, dataDir)
	if err != nil {
		return err
	}
	e.Tick = tick

	alive := e.aliveAgents()
	if len(alive) == 0 {
		return writePrompts(dataDir, PromptsFile{Tick: tick, Alive: []string{}, Prompts: map[string]string{}})
	}

	prng := perturbRand(cfg.Simulation.Seed, tick)
	for _, a := range alive {
		if _, err := perturb.MaybePerturb(a, tick, perturbConfig(cfg.Perturbation), dataDir, prng); err != nil {
			return err
		}
	}

	out := PromptsFile{
		Tick:    tick,
		Alive:   make([]string, 0, len(alive)),
		Prompts: make(map[string]string, len(alive)),
	}
	for _, a := range alive {
		out.Alive = append(out.Alive, a.Name)
		out.Prompts[a.Name] = a.BuildPrompt(e.World, tick)
	}
	return writePrompts(dataDir, out)
}

// Apply runs the post-inference half of a tick: read the responses the
// coordinator wrote to team/tick_<N>_responses.json, then parse, apply,
// drain, age, update the world, extract metrics, and persist.
//
// Compaction requests drain energy but are not executed here: the split
// protocol has no inference channel of its own.
func Apply(dataDir string, tick int) (Status, error) {
	cfg, err := LoadRunConfig(dataDir)
	if err != nil {
		return Status{}, err
	}
	e, err := FromCheckpoint(cfg, dataDir)
	if err != nil {
		return Status{}, err
	}
	e.Tick = tick

	responsesPath := filepath.Join(dataDir, "team", fmt.Sprintf("tick_%d_responses.json", tick))
	raw, err := os.ReadFile(responsesPath)
	if err != nil {
		return Status{}, err
	}
	var responses map[string]string
	if err := json.Unmarshal(raw, &responses); err != nil {
		return Status{}, fmt.Errorf("responses %s: %w", responsesPath, err)
	}

	alive := e.aliveAgents()
	parsed := make([]action.Action, len(alive))
	for i, a := range alive {
		text, ok := responses[a.Name]
		if !ok {
			text = missingResponse
		}
		act := action.Parse(text)
		if _, err := ApplyAction(a, act, e.World, cfg, tick, alive); err != nil {
			return Status{}, err
		}
		parsed[i] = act
	}

	for _, a := range alive {
		a.Drain(cfg.Agents.EnergyDrainPerTick)
	}
	for _, a := range alive {
		a.Age++
	}
	e.World.TickUpdate(tick)

	if tick%cfg.Metrics.ExtractEvery == 0 {
		rows := make([]metrics.Row, len(alive))
		for i, a := range alive {
			rows[i] = metrics.RowFor(a, tick, parsed[i])
		}
		if err := metrics.Append(dataDir, rows); err != nil {
			return Status{}, err
		}
	}

	for _, a := range e.Agents {
		if a.Alive {
			if err := a.SaveState(); err != nil {
				return Status{}, err
			}
		}
	}

	if tick%cfg.Simulation.SnapshotEvery == 0 {
		if err := snapshot.Write(dataDir, e.buildSnapshot()); err != nil {
			return Status{}, err
		}
	}

	aliveCount := len(e.aliveAgents())
	return Status{Tick: tick, Alive: aliveCount, Dead: len(e.Agents) - aliveCount}, nil
}

func writePrompts(dataDir string, out PromptsFile) error {
	dir := filepath.Join(dataDir, "team")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("tick_%d_prompts.json", out.Tick)), b, 0o644)
}
