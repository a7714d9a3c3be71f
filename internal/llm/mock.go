package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// Mock is the deterministic stand-in provider: it parses the tick prompt and
// plays a simple survival strategy (eat > move toward food > recall/remember/
// signal > explore) without any external call.
//
// Decisions are derived from a hash of the seed and the prompt text, so the
// outcome for a given prompt is identical no matter how concurrent dispatch
// interleaves invocations.
type Mock struct {
	seed int64
}

func NewMock(seed int64) *Mock { return &Mock{seed: seed} }

func (m *Mock) Invoke(ctx context.Context, prompt, model string) (Response, error) {
	st := parsePromptState(prompt)
	rng := m.promptRand(prompt)
	act, working, reasoning := decide(st, rng)
	text := fmt.Sprintf("ACTION: %s\nWORKING: %s\nREASONING: %s", act, working, reasoning)
	return Response{Text: text, SessionID: "mock-session-001"}, nil
}

func (m *Mock) promptRand(prompt string) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|", m.seed)
	h.Write([]byte(prompt))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

type promptState struct {
	name      string
	x, y      int
	energy    float64
	maxEnergy float64
	tick      int
	food      []promptFood
	agents    []promptAgent
	signals   []string
}

type promptFood struct {
	x, y   int
	energy int
}

type promptAgent struct {
	name string
	x, y int
}

var (
	headerRe = regexp.MustCompile(`\[Tick (\d+)\] You are ([^.]+)\.`)
	statusRe = regexp.MustCompile(`Energy:\s*(\d+\.?\d*)/(\d+\.?\d*)\.\s*Position:\s*\((\d+),(\d+)\)`)
	foodRe   = regexp.MustCompile(`Food at \((\d+),(\d+)\):\s*(\d+) energy`)
	agentRe  = regexp.MustCompile(`Agent (\S+) at \((\d+),(\d+)\)`)
)

func parsePromptState(prompt string) promptState {
	var st promptState
	st.maxEnergy = 100

	if m := headerRe.FindStringSubmatch(prompt); m != nil {
		st.tick, _ = strconv.Atoi(m[1])
		st.name = m[2]
	}
	if m := statusRe.FindStringSubmatch(prompt); m != nil {
		st.energy, _ = strconv.ParseFloat(m[1], 64)
		st.maxEnergy, _ = strconv.ParseFloat(m[2], 64)
		st.x, _ = strconv.Atoi(m[3])
		st.y, _ = strconv.Atoi(m[4])
	}
	for _, m := range foodRe.FindAllStringSubmatch(prompt, -1) {
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		e, _ := strconv.Atoi(m[3])
		st.food = append(st.food, promptFood{x: x, y: y, energy: e})
	}
	for _, m := range agentRe.FindAllStringSubmatch(prompt, -1) {
		x, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		st.agents = append(st.agents, promptAgent{name: m[1], x: x, y: y})
	}
	if _, after, ok := strings.Cut(prompt, "INCOMING SIGNALS:\n"); ok {
		block, _, _ := strings.Cut(after, "WORKING NOTES")
		block = strings.TrimSpace(block)
		if block != "" && block != "None" {
			for _, line := range strings.Split(block, "\n") {
				if s := strings.TrimSpace(line); s != "" {
					st.signals = append(st.signals, s)
				}
			}
		}
	}
	return st
}

var directionNames = map[string]string{"n": "north", "s": "south", "e": "east", "w": "west"}

func decide(st promptState, rng *rand.Rand) (act, working, reasoning string) {
	// Eat if standing on food with room to spare.
	for _, f := range st.food {
		if f.x == st.x && f.y == st.y && st.energy < st.maxEnergy {
			return "eat",
				fmt.Sprintf("Eating food at my position (%d,%d)", st.x, st.y),
				"There is food here and I need energy"
		}
	}

	// Head toward the nearest visible food (Manhattan, ignoring wrap).
	if len(st.food) > 0 {
		best := st.food[0]
		bestDist := abs(best.x-st.x) + abs(best.y-st.y)
		for _, f := range st.food[1:] {
			if d := abs(f.x-st.x) + abs(f.y-st.y); d < bestDist {
				best, bestDist = f, d
			}
		}
		dx := best.x - st.x
		dy := best.y - st.y
		var dir string
		if abs(dx) >= abs(dy) {
			dir = "w"
			if dx > 0 {
				dir = "e"
			}
		} else {
			dir = "s"
			if dy < 0 {
				dir = "n"
			}
		}
		working = fmt.Sprintf("Food spotted at (%d,%d) with %d energy. Heading there.", best.x, best.y, best.energy)
		reasoning = fmt.Sprintf("Moving %s toward food at (%d,%d)", directionNames[dir], best.x, best.y)
		return fmt.Sprintf("move(%s)", dir), working, reasoning
	}

	// Low on energy with nothing visible: sometimes check memory.
	if st.energy < st.maxEnergy*0.4 && st.tick > 5 && rng.Float64() < 0.3 {
		return `recall("food location")`,
			"Low energy, checking memory for food",
			"Running low on energy with no food visible, searching memory"
	}

	// Occasionally jot an observation down.
	if rng.Float64() < 0.05 && st.tick > 1 {
		notes := []string{
			fmt.Sprintf("No food visible from (%d,%d)", st.x, st.y),
			fmt.Sprintf("Energy at %.0f/%.0f", st.energy, st.maxEnergy),
			fmt.Sprintf("Explored area around (%d,%d)", st.x, st.y),
		}
		note := notes[rng.Intn(len(notes))]
		return fmt.Sprintf("remember(%q)", note),
			fmt.Sprintf("Recording observation at tick %d", st.tick),
			"Making a note for future reference"
	}

	// Occasionally chat with neighbors.
	if len(st.agents) > 0 && rng.Float64() < 0.08 {
		msgs := []string{
			"no food here",
			"searching for food",
			"heading " + directionNames[[]string{"n", "s", "e", "w"}[rng.Intn(4)]],
		}
		msg := msgs[rng.Intn(len(msgs))]
		return fmt.Sprintf("signal(%q)", msg),
			"Communicating with nearby agents",
			"Other agents are nearby, sharing information"
	}

	// Explore.
	dir := []string{"n", "s", "e", "w"}[rng.Intn(4)]
	return fmt.Sprintf("move(%s)", dir),
		fmt.Sprintf("Exploring %s from (%d,%d). No food visible.", directionNames[dir], st.x, st.y),
		fmt.Sprintf("No food in sight, exploring %s to find resources", directionNames[dir])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
