package engine_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"savannah.ai/internal/persistence/snapshot"
	"savannah.ai/internal/sim/engine"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	promptsSchema := compile("prompts.schema.json")
	responsesSchema := compile("responses.schema.json")
	snapshotSchema := compile("snapshot.schema.json")

	var prompts any
	_ = json.Unmarshal([]byte(`{
	  "tick": 3,
	  "alive": ["Swift-Creek", "Broad-Stone"],
	  "prompts": {
	    "Swift-Creek": "[Tick 3] You are Swift-Creek.",
	    "Broad-Stone": "[Tick 3] You are Broad-Stone."
	  }
	}`), &prompts)
	validate(promptsSchema, prompts)

	var responses any
	_ = json.Unmarshal([]byte(`{
	  "Swift-Creek": "ACTION: rest\nWORKING: \nREASONING: waiting",
	  "Broad-Stone": "ACTION: move(n)\nWORKING: north\nREASONING: food"
	}`), &responses)
	validate(responsesSchema, responses)

	var snap any
	_ = json.Unmarshal([]byte(`{
	  "tick": 100,
	  "world": {
	    "size": 30,
	    "wrap_mode": "toroidal",
	    "food": [
	      {"id": "food_1", "x": 3, "y": 4, "energy": 42.5, "max_energy": 60}
	    ]
	  },
	  "agents": [
	    {
	      "name": "Swift-Creek",
	      "id": "0000",
	      "position": [5, 6],
	      "energy": 77.5,
	      "max_energy": 100,
	      "age": 100,
	      "alive": true,
	      "kills": 0,
	      "perturbation_count": 2,
	      "last_perturbation_tick": 61
	    }
	  ]
	}`), &snap)
	validate(snapshotSchema, snap)
}

// The artifacts the engine actually writes must satisfy the published
// schemas, not just the hand-written samples.
func TestSchemas_ValidateEngineOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Ticks = 2
	dir := t.TempDir()
	e := engine.New(cfg, dir, &scripted{text: "ACTION: rest\nWORKING: \nREASONING: waiting"})
	if err := e.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := engine.Prep(dir, 3); err != nil {
		t.Fatalf("prep: %v", err)
	}

	snapSchema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "snapshot.schema.json"))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(snapshot.PathFor(dir, 2))
	if err != nil {
		t.Fatal(err)
	}
	var snap any
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	if err := snapSchema.Validate(snap); err != nil {
		t.Fatalf("engine snapshot violates schema: %v", err)
	}

	promptsSchema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "prompts.schema.json"))
	if err != nil {
		t.Fatal(err)
	}
	raw, err = os.ReadFile(filepath.Join(dir, "team", "tick_3_prompts.json"))
	if err != nil {
		t.Fatal(err)
	}
	var prompts any
	if err := json.Unmarshal(raw, &prompts); err != nil {
		t.Fatal(err)
	}
	if err := promptsSchema.Validate(prompts); err != nil {
		t.Fatalf("prep output violates schema: %v", err)
	}
}
