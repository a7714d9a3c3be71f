// Package engine runs the simulation: world + agents + LLM inference per
// tick.
//
// Tick phases run in a fixed order — perturbation, dispatch, apply, drain,
// age, world update, compaction, metrics, persist, snapshot. Apply runs in
// roster order after all responses are in; with a deterministic provider the
// whole run is reproducible from config and seed alone.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"savannah.ai/internal/config"
	"savannah.ai/internal/llm"
	persistlog "savannah.ai/internal/persistence/log"
	"savannah.ai/internal/persistence/metrics"
	"savannah.ai/internal/persistence/snapshot"
	"savannah.ai/internal/sim/action"
	"savannah.ai/internal/sim/agent"
	"savannah.ai/internal/sim/memory"
	"savannah.ai/internal/sim/names"
	"savannah.ai/internal/sim/perturb"
	"savannah.ai/internal/sim/world"
)

var directionDeltas = map[string][2]int{
	"n": {0, -1},
	"s": {0, 1},
	"e": {1, 0},
	"w": {-1, 0},
}

// Engine owns the world, the agent roster and the per-tick orchestration.
type Engine struct {
	cfg      config.Config
	dataDir  string
	provider llm.Provider
	logger   *log.Logger

	World  *world.World
	Agents []*agent.Agent
	Tick   int

	rng *rand.Rand

	journal *persistlog.TickJournal
	index   *metrics.Index
}

// New builds an engine for a fresh run. Provider may be nil for callers that
// only reconstruct state (see FromCheckpoint).
func New(cfg config.Config, dataDir string, provider llm.Provider) *Engine {
	return &Engine{
		cfg:      cfg,
		dataDir:  dataDir,
		provider: provider,
		logger:   log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		World:    world.New(worldConfig(cfg.World), cfg.Simulation.Seed),
		rng:      rand.New(rand.NewSource(cfg.Simulation.Seed)),
	}
}

// SetJournal attaches the per-tick journal writer.
func (e *Engine) SetJournal(j *persistlog.TickJournal) { e.journal = j }

// SetIndex attaches the optional read-model index. Nil disables indexing.
func (e *Engine) SetIndex(idx *metrics.Index) { e.index = idx }

// Setup creates the run directory layout, saves the resolved config, seeds
// the world and spawns the roster, then writes the tick-zero snapshot.
func (e *Engine) Setup() error {
	for _, d := range []string{
		e.dataDir,
		filepath.Join(e.dataDir, "logs", "ticks"),
		filepath.Join(e.dataDir, "analysis"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	// Persist the resolved config so resume and team-mode helpers re-derive
	// identical state.
	if err := config.Save(filepath.Join(e.dataDir, "config.yaml"), e.cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	e.World.Initialize()
	if err := e.spawnAgents(); err != nil {
		return err
	}
	e.logger.Printf("spawned %d agents", len(e.Agents))
	return e.saveSnapshot()
}

// Run executes the main tick loop until max ticks, extinction, or context
// cancellation. A final snapshot is always written on the way out.
func (e *Engine) Run(ctx context.Context) error {
	maxTicks := e.cfg.Simulation.Ticks
	delay := time.Duration(e.cfg.Simulation.TickDelayMs) * time.Millisecond

	for e.Tick < maxTicks {
		if err := ctx.Err(); err != nil {
			break
		}
		e.Tick++
		alive := e.aliveAgents()
		if len(alive) == 0 {
			e.logger.Printf("all agents dead at tick %d", e.Tick)
			break
		}
		e.logger.Printf("tick %d / %d  (%d alive)", e.Tick, maxTicks, len(alive))

		// 1. Perturbation, before any agent sees its state.
		prng := perturbRand(e.cfg.Simulation.Seed, e.Tick)
		var events []any
		for _, a := range alive {
			ev, err := perturb.MaybePerturb(a, e.Tick, perturbConfig(e.cfg.Perturbation), e.dataDir, prng)
			if err != nil {
				e.logger.Printf("perturbation: %v", err)
			}
			if ev != nil {
				events = append(events, ev)
			}
		}

		// 2. Dispatch all prompts; hard barrier until every response is in.
		t0 := time.Now()
		responses := e.dispatchAll(ctx, alive)
		inferenceMs := time.Since(t0).Milliseconds()

		// 3. Parse and apply in roster order.
		parsed := make([]action.Action, len(alive))
		var compacting []*agent.Agent
		for i, a := range alive {
			act := action.Parse(responses[i])
			wantsCompaction, err := ApplyAction(a, act, e.World, e.cfg, e.Tick, alive)
			if err != nil {
				e.logger.Printf("apply %s for %s: %v", act.Name, a.Name, err)
			}
			if wantsCompaction {
				compacting = append(compacting, a)
			}
			parsed[i] = act
		}

		// 4. Passive drain.
		for _, a := range alive {
			a.Drain(e.cfg.Agents.EnergyDrainPerTick)
		}

		// 5. Age.
		for _, a := range alive {
			a.Age++
		}

		// 6. World housekeeping.
		e.World.TickUpdate(e.Tick)

		// 6b. Pending compactions, sequentially in roster order.
		for _, a := range compacting {
			if err := e.doCompaction(ctx, a); err != nil {
				e.logger.Printf("compaction for %s: %v", a.Name, err)
			}
		}

		// 7. Metrics.
		if e.Tick%e.cfg.Metrics.ExtractEvery == 0 {
			rows := make([]metrics.Row, len(alive))
			for i, a := range alive {
				rows[i] = metrics.RowFor(a, e.Tick, parsed[i])
			}
			if err := metrics.Append(e.dataDir, rows); err != nil {
				e.logger.Printf("metrics: %v", err)
			}
			e.index.AddMetrics(rows)
		}

		// 8. Persist per-agent state.
		for _, a := range alive {
			if err := a.SaveState(); err != nil {
				e.logger.Printf("save state for %s: %v", a.Name, err)
			}
		}

		// 9. Periodic snapshot.
		if e.Tick%e.cfg.Simulation.SnapshotEvery == 0 {
			if err := e.saveSnapshot(); err != nil {
				e.logger.Printf("snapshot: %v", err)
			}
		}

		if e.journal != nil {
			actions := make(map[string]string, len(alive))
			for i, a := range alive {
				actions[a.Name] = actionLabel(parsed[i])
			}
			if err := e.journal.Write(persistlog.TickEntry{
				Tick:          e.Tick,
				Alive:         len(e.aliveAgents()),
				InferenceMs:   inferenceMs,
				Actions:       actions,
				Perturbations: events,
			}); err != nil {
				e.logger.Printf("journal: %v", err)
			}
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	if err := e.saveSnapshot(); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	e.logger.Printf("simulation complete: %d ticks, %d/%d agents alive",
		e.Tick, len(e.aliveAgents()), len(e.Agents))
	return ctx.Err()
}

func (e *Engine) aliveAgents() []*agent.Agent {
	var alive []*agent.Agent
	for _, a := range e.Agents {
		if a.Alive {
			alive = append(alive, a)
		}
	}
	return alive
}

func (e *Engine) spawnAgents() error {
	grid := e.cfg.World.GridSize
	roster, err := names.Generate(e.cfg.Agents.Count, e.cfg.Simulation.Seed)
	if err != nil {
		return err
	}
	for i, name := range roster {
		x := e.rng.Intn(grid)
		y := e.rng.Intn(grid)
		a := &agent.Agent{
			Name:        name,
			ID:          fmt.Sprintf("%04x", i),
			X:           x,
			Y:           y,
			Energy:      e.cfg.Agents.EnergyStart,
			MaxEnergy:   e.cfg.Agents.EnergyMax,
			Alive:       true,
			FoodValue:   e.cfg.Agents.FoodValue,
			VisionRange: e.cfg.Agents.VisionRange,
			DataDir:     e.dataDir,
		}
		if err := a.InitializeFiles(); err != nil {
			return fmt.Errorf("init agent %s: %w", name, err)
		}
		e.Agents = append(e.Agents, a)
	}
	return nil
}

// dispatchAll builds every prompt in roster order, then invokes the provider
// concurrently up to the configured bound. Prompt construction mutates the
// pending queues, so it stays sequential; only the network calls overlap.
func (e *Engine) dispatchAll(ctx context.Context, alive []*agent.Agent) []string {
	prompts := make([]string, len(alive))
	for i, a := range alive {
		prompts[i] = a.BuildPrompt(e.World, e.Tick)
	}

	responses := make([]string, len(alive))
	sem := make(chan struct{}, e.cfg.LLM.MaxConcurrentAgents)
	done := make(chan struct{})
	for i := range alive {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := e.provider.Invoke(ctx, prompts[i], e.cfg.LLM.Model)
			if err != nil {
				e.logger.Printf("llm invoke failed for %s: %v", alive[i].Name, err)
				responses[i] = "ACTION: rest\nWORKING: error\nREASONING: LLM failure"
				return
			}
			responses[i] = resp.Text
		}(i)
	}
	for range alive {
		<-done
	}
	return responses
}

// ApplyAction applies one parsed action to the agent and world. It returns
// whether the agent requested a compaction, which the caller runs after the
// world update so all compactions for a tick see the same episodic state.
func ApplyAction(a *agent.Agent, act action.Action, w *world.World, cfg config.Config, tick int, alive []*agent.Agent) (bool, error) {
	// Every action overwrites the scratch notes, even an empty WORKING.
	if err := os.WriteFile(a.WorkingPath(), []byte(act.Working), 0o644); err != nil {
		return false, fmt.Errorf("working notes: %w", err)
	}
	ac := cfg.Agents

	switch act.Name {
	case "move":
		d := directionDeltas[act.Args]
		a.X, a.Y = w.Wrap(a.X+d[0], a.Y+d[1])
		a.Drain(ac.EnergyPerMove)

	case "eat":
		// Eating is free; the bite is bounded by rate, what's left in the
		// source, and the agent's headroom.
		if food := w.FoodAt(a.X, a.Y); food != nil {
			amount := min(ac.EatRate, food.Energy, a.MaxEnergy-a.Energy)
			food.Energy -= amount
			a.Energy = min(a.Energy+amount, a.MaxEnergy)
		}

	case "recall":
		a.PendingRecallResults = memory.Recall(a.MemoryDir(), act.Args, ac.RecallMaxResults)
		a.Drain(ac.EnergyPerRecall)

	case "remember":
		if act.Args != "" {
			if err := memory.Remember(a.MemoryDir(), fmt.Sprintf("Tick %d: %s", tick, act.Args)); err != nil {
				a.Drain(ac.EnergyPerRemember)
				return false, fmt.Errorf("remember: %w", err)
			}
		}
		a.Drain(ac.EnergyPerRemember)

	case "compact":
		a.Drain(ac.EnergyPerCompact)
		return true, nil

	case "signal":
		if act.Args != "" {
			BroadcastSignal(a, act.Args, w, ac.CommRange, alive)
		}
		a.Drain(ac.EnergyPerSignal)

	case "observe":
		a.Drain(ac.EnergyPerObserve)

	case "attack":
		target := FindAdjacentAgent(a, act.Args, w, alive)
		a.Drain(ac.EnergyPerAttack)
		if target != nil {
			damage := a.Energy * ac.CombatRiskFactor
			target.Drain(damage)
			if !target.Alive {
				a.Energy = min(a.Energy+target.FoodValue, a.MaxEnergy)
				a.Kills++
			}
		}

	case "flee":
		d := directionDeltas[act.Args]
		a.X, a.Y = w.Wrap(a.X+d[0]*2, a.Y+d[1]*2)
		a.Drain(ac.EnergyPerFlee)

	default: // rest and anything unknown
		a.Drain(ac.EnergyPerRest)
	}
	return false, nil
}

// BroadcastSignal delivers a message to every other live agent within
// Chebyshev comm range, prefixed with the sender's name. Agents that died
// earlier this tick are skipped, not just the tick-start roster.
func BroadcastSignal(sender *agent.Agent, message string, w *world.World, commRange int, alive []*agent.Agent) {
	for _, a := range alive {
		if !a.Alive || a.Name == sender.Name {
			continue
		}
		if chebyshev(sender.X, sender.Y, a.X, a.Y, w) <= commRange {
			a.PendingSignals = append(a.PendingSignals, fmt.Sprintf("%s: %s", sender.Name, message))
		}
	}
}

// FindAdjacentAgent resolves an attack target: a live agent with the given
// name within one cell of the attacker. Self-attack is never resolved, and
// neither is an agent already killed this tick: actions apply in roster
// order, so only the first attacker on a shared victim profits.
func FindAdjacentAgent(attacker *agent.Agent, targetName string, w *world.World, alive []*agent.Agent) *agent.Agent {
	if targetName == "" {
		return nil
	}
	for _, a := range alive {
		if !a.Alive || a.Name != targetName || a.Name == attacker.Name {
			continue
		}
		if chebyshev(attacker.X, attacker.Y, a.X, a.Y, w) <= 1 {
			return a
		}
	}
	return nil
}

func (e *Engine) doCompaction(ctx context.Context, a *agent.Agent) error {
	prompt := memory.BuildCompactionPrompt(a.Name, a.MemoryDir(), e.Tick)
	resp, err := e.provider.Invoke(ctx, prompt, e.cfg.LLM.CompactionModel)
	if err != nil {
		return err
	}
	sections, ok := memory.ParseCompactionResponse(resp.Text)
	if !ok {
		return fmt.Errorf("compaction response unparseable")
	}
	_, err = memory.ApplyCompaction(a.MemoryDir(), sections, e.dataDir)
	return err
}

func (e *Engine) saveSnapshot() error {
	snap := e.buildSnapshot()
	if err := snapshot.Write(e.dataDir, snap); err != nil {
		return err
	}
	e.index.RecordSnapshot(metrics.SnapshotRow{
		Tick:   snap.Tick,
		Path:   snapshot.PathFor(e.dataDir, snap.Tick),
		Seed:   e.cfg.Simulation.Seed,
		Food:   len(snap.World.Food),
		Agents: len(snap.Agents),
		Alive:  len(e.aliveAgents()),
	})
	return nil
}

func (e *Engine) buildSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Tick: e.Tick,
		World: snapshot.WorldV1{
			Size:     e.World.Size,
			WrapMode: e.World.WrapMode(),
			Food:     []snapshot.FoodV1{},
		},
		Agents: []agent.State{},
	}
	for _, f := range e.World.Food() {
		snap.World.Food = append(snap.World.Food, snapshot.FoodV1{
			ID: f.ID, X: f.X, Y: f.Y, Energy: f.Energy, MaxEnergy: f.MaxEnergy,
		})
	}
	for _, a := range e.Agents {
		snap.Agents = append(snap.Agents, a.State())
	}
	return snap
}

// perturbRand derives the per-tick perturbation RNG from seed and tick, so
// the single-process loop and the split prep/apply path draw identically and
// resume does not disturb the stream.
func perturbRand(seed int64, tick int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(tick)*1_000_003))
}

func chebyshev(x1, y1, x2, y2 int, w *world.World) int {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	if w.Toroidal {
		dx = min(dx, w.Size-dx)
		dy = min(dy, w.Size-dy)
	}
	return max(dx, dy)
}

func actionLabel(act action.Action) string {
	if act.Args != "" {
		return act.Name + "(" + act.Args + ")"
	}
	return act.Name
}

func worldConfig(w config.World) world.Config {
	return world.Config{
		Size:     w.GridSize,
		Toroidal: w.Toroidal,
		Food: world.FoodConfig{
			MinSources: w.Food.MinSources,
			MaxSources: w.Food.MaxSources,
			SpawnRate:  w.Food.SpawnRate,
			DecayRate:  w.Food.DecayRate,
			SizeMin:    w.Food.SizeMin,
			SizeMax:    w.Food.SizeMax,
		},
	}
}

func perturbConfig(p config.Perturbation) perturb.Config {
	return perturb.Config{
		Enabled:   p.Enabled,
		StartTick: p.StartTick,
		Rate:      p.Rate,
		Types:     p.Types,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
