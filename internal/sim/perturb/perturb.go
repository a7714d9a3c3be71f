// Package perturb injects controlled corruption into agent memories — the
// experiment's independent variable.
//
// Every roll and target choice draws from the scheduler's seed-derived RNG
// stream, keeping runs reproducible. A corruption attempt that finds no
// matchable pattern in its target is a silent no-op, not an error.
package perturb

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	persistlog "savannah.ai/internal/persistence/log"
	"savannah.ai/internal/sim/agent"
)

// falseCoordMax bounds the fabricated coordinates written by the
// location-swap transform, independent of grid size.
const falseCoordMax = 29

type Config struct {
	Enabled   bool
	StartTick int
	Rate      float64
	Types     map[string]float64
}

// Event is one applied corruption, appended to logs/perturbations.jsonl.
type Event struct {
	Tick       int    `json:"tick"`
	Agent      string `json:"agent"`
	Type       string `json:"type"`
	Transform  string `json:"transform"`
	TargetFile string `json:"target_file"`
	Original   string `json:"original"`
	Corrupted  string `json:"corrupted"`
}

var coordRe = regexp.MustCompile(`\((\d+),(\d+)\)`)

// Inversion pairs, applied first match wins, in this fixed order.
var outcomeInversions = [][2]string{
	{"found food", "no food found"},
	{"no food found", "found food"},
	{"trustworthy", "untrustworthy"},
	{"untrustworthy", "trustworthy"},
	{"safe", "dangerous"},
	{"dangerous", "safe"},
	{"abundant", "scarce"},
	{"scarce", "abundant"},
}

// MaybePerturb rolls for a perturbation against one agent at one tick and
// applies it if triggered. On success the agent's perturbation counters are
// updated and the event is logged. Returns nil when nothing happened.
func MaybePerturb(a *agent.Agent, tick int, cfg Config, dataDir string, rng *rand.Rand) (*Event, error) {
	if !cfg.Enabled || tick < cfg.StartTick {
		return nil, nil
	}
	if rng.Float64() > cfg.Rate {
		return nil, nil
	}

	kind := weightedChoice(cfg.Types, rng)
	if kind == "" {
		return nil, nil
	}

	ev := applyPerturbation(a, kind, rng)
	if ev == nil {
		return nil, nil
	}
	ev.Tick = tick
	ev.Agent = a.Name

	a.TimesPerturbed++
	a.LastPerturbationTick = tick

	logPath := filepath.Join(dataDir, "logs", "perturbations.jsonl")
	if err := persistlog.AppendJSONL(logPath, ev); err != nil {
		return ev, fmt.Errorf("perturbation log: %w", err)
	}
	return ev, nil
}

func applyPerturbation(a *agent.Agent, kind string, rng *rand.Rand) *Event {
	switch kind {
	case "episodic":
		return perturbEpisodic(a.MemoryDir(), rng)
	case "semantic":
		return invertBuffer(a.MemoryDir(), "semantic.md", "semantic", "memory/semantic.md")
	case "self_model":
		return invertBuffer(a.MemoryDir(), "self.md", "self_model", "memory/self.md")
	case "working":
		return perturbWorking(a, rng)
	}
	return nil
}

// perturbEpisodic corrupts one random episodic line: location swap first,
// outcome inversion as fallback.
func perturbEpisodic(memoryDir string, rng *rand.Rand) *Event {
	path := filepath.Join(memoryDir, "episodic.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	idx := rng.Intn(len(lines))
	original := lines[idx]

	transform := "location_swap"
	corrupted := swapCoords(original, rng)
	if corrupted == original {
		transform = "outcome_invert"
		corrupted = invertOutcome(original)
	}
	if corrupted == original {
		return nil
	}

	lines[idx] = corrupted
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return nil
	}
	return &Event{
		Type:       "episodic",
		Transform:  transform,
		TargetFile: "memory/episodic.md",
		Original:   original,
		Corrupted:  corrupted,
	}
}

// invertBuffer applies outcome inversion to a whole buffer.
func invertBuffer(memoryDir, file, kind, targetFile string) *Event {
	path := filepath.Join(memoryDir, file)
	raw, err := os.ReadFile(path)
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	original := string(raw)
	corrupted := invertOutcome(original)
	if corrupted == original {
		return nil
	}
	if err := os.WriteFile(path, []byte(corrupted), 0o644); err != nil {
		return nil
	}
	return &Event{
		Type:       kind,
		Transform:  "outcome_invert",
		TargetFile: targetFile,
		Original:   original,
		Corrupted:  corrupted,
	}
}

// perturbWorking swaps coordinates in the agent's scratch notes.
func perturbWorking(a *agent.Agent, rng *rand.Rand) *Event {
	raw, err := os.ReadFile(a.WorkingPath())
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	original := string(raw)
	corrupted := swapCoords(original, rng)
	if corrupted == original {
		return nil
	}
	if err := os.WriteFile(a.WorkingPath(), []byte(corrupted), 0o644); err != nil {
		return nil
	}
	return &Event{
		Type:       "working",
		Transform:  "location_swap",
		TargetFile: "working.md",
		Original:   original,
		Corrupted:  corrupted,
	}
}

func swapCoords(text string, rng *rand.Rand) string {
	return coordRe.ReplaceAllStringFunc(text, func(string) string {
		return fmt.Sprintf("(%d,%d)", rng.Intn(falseCoordMax+1), rng.Intn(falseCoordMax+1))
	})
}

func invertOutcome(text string) string {
	lower := strings.ToLower(text)
	for _, pair := range outcomeInversions {
		old, repl := pair[0], pair[1]
		if strings.Contains(lower, old) {
			out := strings.ReplaceAll(text, old, repl)
			return strings.ReplaceAll(out, capitalize(old), capitalize(repl))
		}
	}
	return text
}

// weightedChoice picks a corruption kind by weight. Kinds are walked in
// sorted order so the draw consumes the RNG stream identically across runs.
func weightedChoice(weights map[string]float64, rng *rand.Rand) string {
	if len(weights) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(weights))
	for k := range weights {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	total := 0.0
	for _, k := range kinds {
		total += weights[k]
	}
	r := rng.Float64() * total
	cum := 0.0
	for _, k := range kinds {
		cum += weights[k]
		if r <= cum {
			return k
		}
	}
	return kinds[len(kinds)-1]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
