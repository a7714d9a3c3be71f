package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"savannah.ai/internal/config"
	"savannah.ai/internal/llm"
	persistlog "savannah.ai/internal/persistence/log"
	"savannah.ai/internal/persistence/metrics"
	"savannah.ai/internal/persistence/snapshot"
	"savannah.ai/internal/sim/engine"
	"savannah.ai/internal/sim/memory"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	logger := log.New(os.Stdout, "[savannah] ", log.LstdFlags|log.Lmicroseconds)

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:], logger)
	case "prep":
		cmdPrep(os.Args[2:], logger)
	case "apply":
		cmdApply(os.Args[2:], logger)
	case "inspect":
		cmdInspect(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: savannah <command> [flags]

commands:
  run      run a simulation (fresh or resumed)
  prep     team mode: build tick prompts for an external coordinator
  apply    team mode: apply coordinator responses for a tick
  inspect  summarize a run's state at a tick`)
}

func cmdRun(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		configPath = fs.String("config", "./configs/default.yaml", "experiment config path")
		dataDir    = fs.String("data", "", "run data directory (default: ./data/exp_<timestamp>)")
		resume     = fs.String("resume", "", "resume an interrupted run from this data directory")
		mock       = fs.Bool("mock", false, "use the deterministic mock provider (no API calls)")
		seed       = fs.Int64("seed", 0, "override random seed")
		ticks      = fs.Int("ticks", 0, "override tick count")
		agents     = fs.Int("agents", 0, "override agent count")
		disableDB  = fs.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	_ = fs.Parse(args)

	var cfg config.Config
	var err error
	dir := *dataDir
	if *resume != "" {
		dir = *resume
		cfg, err = engine.LoadRunConfig(dir)
		if err != nil {
			logger.Fatalf("load resumed config: %v", err)
		}
	} else {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		if dir == "" {
			dir = filepath.Join("data", "exp_"+time.Now().Format("20060102_150405"))
		}
	}

	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *ticks != 0 {
		cfg.Simulation.Ticks = *ticks
	}
	if *agents != 0 {
		cfg.Agents.Count = *agents
	}
	if *mock {
		cfg.LLM.Provider = "mock"
	}

	provider, err := llm.NewProvider(cfg.LLM, cfg.Simulation.Seed)
	if err != nil {
		logger.Fatalf("provider: %v", err)
	}
	if cfg.LLM.Provider == "mock" {
		logger.Printf("using mock provider (no API calls)")
	}

	var e *engine.Engine
	if *resume != "" {
		e, err = engine.FromCheckpoint(cfg, dir)
		if err != nil {
			logger.Fatalf("resume: %v", err)
		}
		e.AttachProvider(provider)
		logger.Printf("resumed %s at tick %d", dir, e.Tick)
	} else {
		e = engine.New(cfg, dir, provider)
	}

	journal, err := persistlog.NewTickJournal(dir)
	if err != nil {
		logger.Fatalf("tick journal: %v", err)
	}
	defer journal.Close()
	e.SetJournal(journal)

	if !*disableDB {
		idx, err := metrics.OpenIndex(dir)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		e.SetIndex(idx)
	}

	if *resume == "" {
		if err := e.Setup(); err != nil {
			logger.Fatalf("setup: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Printf("starting experiment: %s", dir)
	if err := e.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("experiment complete: %s", dir)
}

func cmdPrep(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("prep", flag.ExitOnError)
	dataDir := fs.String("data", "", "run data directory")
	tick := fs.Int("tick", 0, "tick number")
	_ = fs.Parse(args)
	if *dataDir == "" || *tick <= 0 {
		logger.Fatalf("prep requires -data and a positive -tick")
	}
	if err := engine.Prep(*dataDir, *tick); err != nil {
		logger.Fatalf("prep: %v", err)
	}
}

func cmdApply(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	dataDir := fs.String("data", "", "run data directory")
	tick := fs.Int("tick", 0, "tick number")
	_ = fs.Parse(args)
	if *dataDir == "" || *tick <= 0 {
		logger.Fatalf("apply requires -data and a positive -tick")
	}
	status, err := engine.Apply(*dataDir, *tick)
	if err != nil {
		logger.Fatalf("apply: %v", err)
	}
	// The coordinator reads this from stdout.
	_ = json.NewEncoder(os.Stdout).Encode(status)
}

func cmdInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "", "run data directory")
	tick := fs.Int("tick", 0, "tick to inspect (nearest snapshot is used)")
	agentName := fs.String("agent", "", "show detail for this agent")
	_ = fs.Parse(args)

	path := nearestSnapshot(*dataDir, *tick)
	if path == "" {
		fmt.Printf("No tick snapshots found in %s\n", snapshot.Dir(*dataDir))
		return
	}
	snap, err := snapshot.Read(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read snapshot: %v\n", err)
		os.Exit(1)
	}

	alive := 0
	for _, a := range snap.Agents {
		if a.Alive {
			alive++
		}
	}

	rule := strings.Repeat("=", 60)
	fmt.Println(rule)
	if snap.Tick != *tick {
		fmt.Printf("Snapshot at tick %d  (requested: %d)\n", snap.Tick, *tick)
	} else {
		fmt.Printf("Snapshot at tick %d\n", snap.Tick)
	}
	fmt.Println(rule)
	fmt.Printf("  World size: %dx%d (%s)\n", snap.World.Size, snap.World.Size, snap.World.WrapMode)
	fmt.Printf("  Food sources: %d\n", len(snap.World.Food))
	fmt.Printf("  Agents alive: %d / %d\n\n", alive, len(snap.Agents))

	fmt.Println("AGENTS:")
	for _, a := range snap.Agents {
		status := "DEAD"
		if a.Alive {
			status = "ALIVE"
		}
		fmt.Printf("  %-20s pos=(%2d,%2d)  energy=%6.1f  [%s]\n",
			a.Name, a.Position[0], a.Position[1], a.Energy, status)
	}

	if *agentName != "" {
		inspectAgent(*dataDir, snap, *agentName)
	}
}

func inspectAgent(dataDir string, snap snapshot.SnapshotV1, name string) {
	found := false
	for _, a := range snap.Agents {
		if a.Name == name {
			found = true
			fmt.Printf("\nAGENT DETAIL: %s\n", name)
			fmt.Printf("  id: %s  age: %d  kills: %d  perturbations: %d (last at tick %d)\n",
				a.ID, a.Age, a.Kills, a.PerturbationCount, a.LastPerturbationTick)
			break
		}
	}
	if !found {
		fmt.Printf("\nAgent %q not found in snapshot.\n", name)
		return
	}

	memDir := filepath.Join(dataDir, "agents", name, "memory")
	for _, f := range []string{"episodic.md", "semantic.md", "self.md", "social.md"} {
		content := memory.ReadBuffer(memDir, f)
		if content == "" {
			content = "(empty)"
		}
		fmt.Printf("\n--- %s ---\n%s\n", f, content)
	}
	working := memory.ReadBuffer(filepath.Join(dataDir, "agents", name), "working.md")
	if working == "" {
		working = "(empty)"
	}
	fmt.Printf("\n--- working.md ---\n%s\n", working)
}

// nearestSnapshot picks the snapshot whose tick number is closest to the
// requested tick.
func nearestSnapshot(dataDir string, tick int) string {
	entries, err := os.ReadDir(snapshot.Dir(dataDir))
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	best := ""
	bestDist := int(^uint(0) >> 1)
	for _, n := range names {
		t, err := strconv.Atoi(strings.TrimSuffix(n, ".json"))
		if err != nil {
			continue
		}
		d := t - tick
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = filepath.Join(snapshot.Dir(dataDir), n)
		}
	}
	return best
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
