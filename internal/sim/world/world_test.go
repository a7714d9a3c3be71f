package world

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Size:     30,
		Toroidal: true,
		Food: FoodConfig{
			MinSources: 5,
			MaxSources: 12,
			SpawnRate:  0,
			DecayRate:  0,
			SizeMin:    30,
			SizeMax:    80,
		},
	}
}

func TestWrap_Toroidal(t *testing.T) {
	w := New(testConfig(), 1)

	cases := []struct{ x, y, wantX, wantY int }{
		{0, 0, 0, 0},
		{30, 5, 0, 5},
		{-1, 5, 29, 5},
		{5, 30, 5, 0},
		{5, -1, 5, 29},
		{-31, -31, 29, 29},
	}
	for _, c := range cases {
		gx, gy := w.Wrap(c.x, c.y)
		if gx != c.wantX || gy != c.wantY {
			t.Fatalf("Wrap(%d,%d) = (%d,%d), want (%d,%d)", c.x, c.y, gx, gy, c.wantX, c.wantY)
		}
	}
}

func TestWrap_ToroidalIdentityUnderFullTurns(t *testing.T) {
	w := New(testConfig(), 1)
	for _, k := range []int{-2, -1, 1, 3} {
		for x := 0; x < w.Size; x += 7 {
			gx, gy := w.Wrap(x+k*w.Size, 5+k*w.Size)
			bx, by := w.Wrap(x, 5)
			if gx != bx || gy != by {
				t.Fatalf("wrap not periodic: k=%d x=%d got (%d,%d) want (%d,%d)", k, x, gx, gy, bx, by)
			}
		}
	}
}

func TestWrap_Clamped(t *testing.T) {
	cfg := testConfig()
	cfg.Toroidal = false
	w := New(cfg, 1)

	if x, y := w.Wrap(-5, 40); x != 0 || y != 29 {
		t.Fatalf("clamped Wrap(-5,40) = (%d,%d), want (0,29)", x, y)
	}
	if w.WrapMode() != "clamped" {
		t.Fatalf("WrapMode = %q, want clamped", w.WrapMode())
	}
}

func TestInitialize_SpawnsHalfMax(t *testing.T) {
	w := New(testConfig(), 42)
	w.Initialize()
	if got := len(w.Food()); got != 6 {
		t.Fatalf("initial food count = %d, want 6", got)
	}
	for _, f := range w.Food() {
		if f.Energy < 30 || f.Energy > 80 {
			t.Fatalf("food %s energy %.0f outside [30,80]", f.ID, f.Energy)
		}
		if f.Energy != f.MaxEnergy {
			t.Fatalf("fresh food %s energy %.0f != max %.0f", f.ID, f.Energy, f.MaxEnergy)
		}
		if !strings.HasPrefix(f.ID, "food_") {
			t.Fatalf("food id %q missing prefix", f.ID)
		}
	}
}

func TestTickUpdate_RemovesDepletedAndTopsUpMinimum(t *testing.T) {
	w := New(testConfig(), 42)
	w.Initialize()
	for _, f := range w.Food() {
		f.Energy = 0
	}

	w.TickUpdate(1)

	if got := len(w.Food()); got < 5 {
		t.Fatalf("food count %d below minimum 5 after update", got)
	}
	for _, f := range w.Food() {
		if f.Depleted() {
			t.Fatalf("depleted source %s survived the update", f.ID)
		}
	}
}

func TestTickUpdate_DecayFloorsAtZero(t *testing.T) {
	cfg := testConfig()
	cfg.Food.DecayRate = 100
	w := New(cfg, 42)
	w.Initialize()

	w.TickUpdate(1)

	for _, f := range w.Food() {
		if f.Energy < 0 {
			t.Fatalf("food %s decayed below zero: %.1f", f.ID, f.Energy)
		}
	}
}

func TestTickUpdate_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Food.SpawnRate = 0.0002
	cfg.Food.DecayRate = 0.5

	run := func() []FoodSource {
		w := New(cfg, 99)
		w.Initialize()
		for tick := 1; tick <= 50; tick++ {
			w.TickUpdate(tick)
		}
		var out []FoodSource
		for _, f := range w.Food() {
			out = append(out, *f)
		}
		return out
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs diverged: %d vs %d sources", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("source %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestVisibleFrom_ToroidalCorner(t *testing.T) {
	w := New(testConfig(), 1)
	w.food = append(w.food, &FoodSource{ID: "food_1", X: 29, Y: 29, Energy: 50, MaxEnergy: 50})

	vis := w.VisibleFrom(0, 0, 3)
	if len(vis.Food) != 1 {
		t.Fatalf("food at (29,29) not visible from (0,0) with radius 3 on toroidal grid")
	}

	// And symmetrically from the opposite corner.
	w2 := New(testConfig(), 1)
	w2.food = append(w2.food, &FoodSource{ID: "food_1", X: 0, Y: 0, Energy: 50, MaxEnergy: 50})
	if vis := w2.VisibleFrom(29, 29, 3); len(vis.Food) != 1 {
		t.Fatalf("food at (0,0) not visible from (29,29)")
	}
}

func TestVisibleFrom_ExcludesOutsideRadius(t *testing.T) {
	w := New(testConfig(), 1)
	w.food = append(w.food,
		&FoodSource{ID: "food_1", X: 5, Y: 5, Energy: 50, MaxEnergy: 50},
		&FoodSource{ID: "food_2", X: 5, Y: 9, Energy: 50, MaxEnergy: 50},
	)

	vis := w.VisibleFrom(5, 5, 3)
	if len(vis.Food) != 1 || vis.Food[0].ID != "food_1" {
		t.Fatalf("expected only food_1 visible, got %d sources", len(vis.Food))
	}
}

func TestVisibleFrom_RadiusZeroSeesOwnCell(t *testing.T) {
	w := New(testConfig(), 1)
	w.food = append(w.food, &FoodSource{ID: "food_1", X: 5, Y: 5, Energy: 50, MaxEnergy: 50})
	if vis := w.VisibleFrom(5, 5, 0); len(vis.Food) != 1 {
		t.Fatalf("food at own cell not visible with radius 0")
	}
}

func TestFoodAt(t *testing.T) {
	w := New(testConfig(), 1)
	w.food = append(w.food, &FoodSource{ID: "food_1", X: 3, Y: 4, Energy: 10, MaxEnergy: 10})

	if f := w.FoodAt(3, 4); f == nil || f.ID != "food_1" {
		t.Fatalf("FoodAt(3,4) = %v, want food_1", f)
	}
	if f := w.FoodAt(4, 3); f != nil {
		t.Fatalf("FoodAt(4,3) = %v, want nil", f)
	}
}

func TestRestore_ContinuesIDCounter(t *testing.T) {
	food := []*FoodSource{
		{ID: "food_3", X: 1, Y: 1, Energy: 40, MaxEnergy: 40},
		{ID: "food_7", X: 2, Y: 2, Energy: 40, MaxEnergy: 40},
	}
	w := Restore(testConfig(), 42, food)
	w.spawnFood()

	last := w.Food()[len(w.Food())-1]
	if last.ID != "food_8" {
		t.Fatalf("restored counter produced %s, want food_8", last.ID)
	}
}
