// Package agent holds per-agent state, its on-disk layout, and tick prompt
// construction.
//
// Layout under the run data directory:
//
//	agents/<name>/state.json
//	agents/<name>/working.md
//	agents/<name>/memory/{episodic,semantic,self,social}.md
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"savannah.ai/internal/sim/memory"
	"savannah.ai/internal/sim/world"
)

// Agent is one simulated agent. Positions and energy are mutated exactly
// once per phase per tick by the scheduler; Alive flips to false irreversibly
// when energy reaches zero, and agents are never removed from the roster.
type Agent struct {
	Name      string
	ID        string
	X, Y      int
	Energy    float64
	MaxEnergy float64
	Age       int
	Alive     bool

	FoodValue   float64
	VisionRange int

	Kills                int
	TimesPerturbed       int
	LastPerturbationTick int

	DataDir string

	// Inbound queues; delivered at most once (cleared on prompt build).
	PendingSignals       []string
	PendingRecallResults []string
}

func (a *Agent) Dir() string         { return filepath.Join(a.DataDir, "agents", a.Name) }
func (a *Agent) MemoryDir() string   { return filepath.Join(a.Dir(), "memory") }
func (a *Agent) WorkingPath() string { return filepath.Join(a.Dir(), "working.md") }
func (a *Agent) StatePath() string   { return filepath.Join(a.Dir(), "state.json") }

// InitializeFiles creates the agent's directory tree and seed files.
func (a *Agent) InitializeFiles() error {
	if err := os.MkdirAll(a.Dir(), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(a.WorkingPath(), nil, 0o644); err != nil {
		return err
	}
	if err := memory.Initialize(a.MemoryDir(), a.Name); err != nil {
		return err
	}
	return a.SaveState()
}

// Drain applies an energy cost. Energy clamps at zero and death at zero
// energy is irreversible.
func (a *Agent) Drain(amount float64) {
	a.Energy -= amount
	if a.Energy <= 0 {
		a.Energy = 0
		a.Alive = false
	}
}

const promptTemplate = `[Tick %d] You are %s.
Energy: %.1f/%.1f. Position: (%d,%d).

VISIBLE (%d-cell radius):
%s

INCOMING SIGNALS:
%s

WORKING NOTES (your scratch space from last tick):
%s

%s

ACTIONS (pick exactly one):
move(n|s|e|w) | eat | recall("query") | remember("text")
compact | signal("msg") | observe | attack(name) | flee(n|s|e|w) | rest

Respond in this exact format:
ACTION: {your action}
WORKING: {updated scratch notes, max 500 tokens}
REASONING: {brief}`

// BuildPrompt constructs the tick prompt from current state and files, then
// clears the pending signal and recall queues. Clearing happens on build, not
// on successful dispatch: delivery is at most once even if the call fails.
func (a *Agent) BuildPrompt(w *world.World, tick int) string {
	working := readFileTrimmed(a.WorkingPath())
	if working == "" {
		working = "(empty)"
	}

	visible := w.VisibleFrom(a.X, a.Y, a.VisionRange)
	messages := "None"
	if len(a.PendingSignals) > 0 {
		messages = strings.Join(a.PendingSignals, "\n")
	}
	recall := ""
	if len(a.PendingRecallResults) > 0 {
		recall = "RECALL RESULTS:\n" + strings.Join(a.PendingRecallResults, "\n")
	}

	prompt := fmt.Sprintf(promptTemplate,
		tick, a.Name,
		a.Energy, a.MaxEnergy, a.X, a.Y,
		a.VisionRange, formatVisible(visible),
		messages, working, recall)

	a.PendingSignals = nil
	a.PendingRecallResults = nil
	return prompt
}

// State is the persisted public view of an agent, overwritten each tick
// while alive and embedded in snapshots.
type State struct {
	Name                 string  `json:"name"`
	ID                   string  `json:"id"`
	Position             [2]int  `json:"position"`
	Energy               float64 `json:"energy"`
	MaxEnergy            float64 `json:"max_energy"`
	Age                  int     `json:"age"`
	Alive                bool    `json:"alive"`
	Kills                int     `json:"kills"`
	PerturbationCount    int     `json:"perturbation_count"`
	LastPerturbationTick int     `json:"last_perturbation_tick"`
}

func (a *Agent) State() State {
	return State{
		Name:                 a.Name,
		ID:                   a.ID,
		Position:             [2]int{a.X, a.Y},
		Energy:               a.Energy,
		MaxEnergy:            a.MaxEnergy,
		Age:                  a.Age,
		Alive:                a.Alive,
		Kills:                a.Kills,
		PerturbationCount:    a.TimesPerturbed,
		LastPerturbationTick: a.LastPerturbationTick,
	}
}

func (a *Agent) SaveState() error {
	b, err := json.MarshalIndent(a.State(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.StatePath(), b, 0o644)
}

// FromState rebuilds an agent from persisted state. Vision range and food
// value are config-derived, not persisted.
func FromState(s State, dataDir string, visionRange int, foodValue float64) *Agent {
	return &Agent{
		Name:                 s.Name,
		ID:                   s.ID,
		X:                    s.Position[0],
		Y:                    s.Position[1],
		Energy:               s.Energy,
		MaxEnergy:            s.MaxEnergy,
		Age:                  s.Age,
		Alive:                s.Alive,
		Kills:                s.Kills,
		TimesPerturbed:       s.PerturbationCount,
		LastPerturbationTick: s.LastPerturbationTick,
		FoodValue:            foodValue,
		VisionRange:          visionRange,
		DataDir:              dataDir,
	}
}

// LoadState reads an agent's state.json, if present.
func LoadState(path string) (State, error) {
	var s State
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("agent state %s: %w", path, err)
	}
	return s, nil
}

func formatVisible(v world.Visible) string {
	var parts []string
	for _, f := range v.Food {
		parts = append(parts, fmt.Sprintf("  Food at (%d,%d): %.0f energy", f.X, f.Y, f.Energy))
	}
	if len(parts) == 0 {
		return "  Nothing visible."
	}
	return strings.Join(parts, "\n")
}

func readFileTrimmed(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
