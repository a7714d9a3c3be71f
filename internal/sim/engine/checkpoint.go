package engine

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	"savannah.ai/internal/config"
	"savannah.ai/internal/llm"
	"savannah.ai/internal/persistence/snapshot"
	"savannah.ai/internal/sim/agent"
	"savannah.ai/internal/sim/world"
)

// FromCheckpoint reconstructs engine state from the latest snapshot plus the
// per-agent state files. The per-agent state.json wins over the snapshot copy
// when both exist: it is written every tick while snapshots are periodic.
//
// The returned engine has no provider; attach one before calling Run.
func FromCheckpoint(cfg config.Config, dataDir string) (*Engine, error) {
	latest, err := snapshot.Latest(dataDir)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Read(latest)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		dataDir: dataDir,
		logger:  log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds),
		rng:     rand.New(rand.NewSource(cfg.Simulation.Seed)),
		Tick:    snap.Tick,
	}

	var food []*world.FoodSource
	for _, f := range snap.World.Food {
		food = append(food, &world.FoodSource{
			ID: f.ID, X: f.X, Y: f.Y, Energy: f.Energy, MaxEnergy: f.MaxEnergy,
		})
	}
	wc := worldConfig(cfg.World)
	if snap.World.Size > 0 {
		wc.Size = snap.World.Size
	}
	e.World = world.Restore(wc, cfg.Simulation.Seed, food)

	for _, snapState := range snap.Agents {
		state := snapState
		a := agent.FromState(state, dataDir, cfg.Agents.VisionRange, cfg.Agents.FoodValue)
		if s, err := agent.LoadState(a.StatePath()); err == nil {
			a = agent.FromState(s, dataDir, cfg.Agents.VisionRange, cfg.Agents.FoodValue)
		}
		e.Agents = append(e.Agents, a)
	}
	if len(e.Agents) == 0 {
		return nil, fmt.Errorf("snapshot %s has no agents", latest)
	}
	return e, nil
}

// AttachProvider sets the inference provider on a reconstructed engine.
func (e *Engine) AttachProvider(p llm.Provider) { e.provider = p }
