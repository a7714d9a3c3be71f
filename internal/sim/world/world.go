// Package world implements the toroidal grid and the food-source lifecycle.
// All spawn stochasticity flows through a single seeded RNG stream, so two
// worlds with the same config and seed evolve identically tick by tick.
package world

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

const spawnAttempts = 100

// FoodSource is a stationary food source on the grid.
type FoodSource struct {
	ID        string
	X, Y      int
	Energy    float64
	MaxEnergy float64
}

func (f *FoodSource) Depleted() bool { return f.Energy <= 0 }

type Config struct {
	Size     int
	Toroidal bool
	Food     FoodConfig
}

type FoodConfig struct {
	MinSources int
	MaxSources int
	SpawnRate  float64
	DecayRate  float64
	SizeMin    int
	SizeMax    int
}

// World is a 2D toroidal grid with food sources.
type World struct {
	Size     int
	Toroidal bool

	cfg  FoodConfig
	rng  *rand.Rand
	food []*FoodSource

	foodIDCounter int
}

func New(cfg Config, seed int64) *World {
	return &World{
		Size:     cfg.Size,
		Toroidal: cfg.Toroidal,
		cfg:      cfg.Food,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Initialize spawns the initial food burst: fill to half of max sources.
func (w *World) Initialize() {
	target := w.cfg.MaxSources / 2
	for i := 0; i < target; i++ {
		w.spawnFood()
	}
}

// TickUpdate runs per-tick world housekeeping: drop depleted sources, top up
// to the minimum, roll the stochastic spawn, then apply decay.
func (w *World) TickUpdate(tick int) {
	kept := w.food[:0]
	for _, f := range w.food {
		if !f.Depleted() {
			kept = append(kept, f)
		}
	}
	w.food = kept

	for len(w.food) < w.cfg.MinSources {
		w.spawnFood()
	}

	// Spawn probability scales with grid area; see the calibration note in
	// the config package.
	if len(w.food) < w.cfg.MaxSources &&
		w.rng.Float64() < w.cfg.SpawnRate*float64(w.Size)*float64(w.Size) {
		w.spawnFood()
	}

	if w.cfg.DecayRate > 0 {
		for _, f := range w.food {
			f.Energy -= w.cfg.DecayRate
			if f.Energy < 0 {
				f.Energy = 0
			}
		}
	}
}

// Wrap maps a coordinate pair onto the grid: modulo in toroidal mode, clamp
// otherwise.
func (w *World) Wrap(x, y int) (int, int) {
	if w.Toroidal {
		return mod(x, w.Size), mod(y, w.Size)
	}
	return clamp(x, 0, w.Size-1), clamp(y, 0, w.Size-1)
}

// FoodAt returns the food source at a position, if any. Linear scan; source
// counts stay small enough that an index would not pay for itself.
func (w *World) FoodAt(x, y int) *FoodSource {
	for _, f := range w.food {
		if f.X == x && f.Y == y {
			return f
		}
	}
	return nil
}

// Visible describes everything observable from a cell.
type Visible struct {
	Food []*FoodSource
}

// VisibleFrom scans the square region within per-axis radius (Chebyshev
// visibility, not Euclidean), wrapping each probed coordinate.
func (w *World) VisibleFrom(x, y, radius int) Visible {
	var v Visible
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			wx, wy := w.Wrap(x+dx, y+dy)
			if f := w.FoodAt(wx, wy); f != nil {
				v.Food = append(v.Food, f)
			}
		}
	}
	return v
}

// Food returns the live food sources in spawn order.
func (w *World) Food() []*FoodSource { return w.food }

// WrapMode reports the wrap mode as persisted in snapshots.
func (w *World) WrapMode() string {
	if w.Toroidal {
		return "toroidal"
	}
	return "clamped"
}

// Restore rebuilds a world from persisted food sources. The RNG stream is
// reseeded; a resumed run continues deterministically but does not replay the
// interrupted stream position.
func Restore(cfg Config, seed int64, food []*FoodSource) *World {
	w := New(cfg, seed)
	w.food = food
	for _, f := range food {
		if n, ok := foodIDNumber(f.ID); ok && n > w.foodIDCounter {
			w.foodIDCounter = n
		}
	}
	return w
}

func (w *World) spawnFood() {
	occupied := make(map[[2]int]bool, len(w.food))
	for _, f := range w.food {
		occupied[[2]int{f.X, f.Y}] = true
	}
	// Rejection-sample an empty cell; a saturated grid gives up silently.
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		x := w.rng.Intn(w.Size)
		y := w.rng.Intn(w.Size)
		if occupied[[2]int{x, y}] {
			continue
		}
		energy := float64(w.cfg.SizeMin + w.rng.Intn(w.cfg.SizeMax-w.cfg.SizeMin+1))
		w.foodIDCounter++
		w.food = append(w.food, &FoodSource{
			ID:        fmt.Sprintf("food_%d", w.foodIDCounter),
			X:         x,
			Y:         y,
			Energy:    energy,
			MaxEnergy: energy,
		})
		return
	}
}

func foodIDNumber(id string) (int, bool) {
	s, ok := strings.CutPrefix(id, "food_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func mod(v, size int) int {
	m := v % size
	if m < 0 {
		m += size
	}
	return m
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
