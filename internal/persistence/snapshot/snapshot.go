// Package snapshot persists the full world+agent state at a tick.
//
// Snapshots are plain JSON under logs/ticks/, named by zero-padded tick so a
// lexical sort is a tick sort. They are immutable once written.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"savannah.ai/internal/sim/agent"
)

type SnapshotV1 struct {
	Tick   int           `json:"tick"`
	World  WorldV1       `json:"world"`
	Agents []agent.State `json:"agents"`
}

type WorldV1 struct {
	Size     int      `json:"size"`
	WrapMode string   `json:"wrap_mode"`
	Food     []FoodV1 `json:"food"`
}

type FoodV1 struct {
	ID        string  `json:"id"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Energy    float64 `json:"energy"`
	MaxEnergy float64 `json:"max_energy"`
}

// Dir returns the snapshot directory under a run data directory.
func Dir(dataDir string) string {
	return filepath.Join(dataDir, "logs", "ticks")
}

// PathFor returns the snapshot path for one tick.
func PathFor(dataDir string, tick int) string {
	return filepath.Join(Dir(dataDir), fmt.Sprintf("%06d.json", tick))
}

// Write persists one snapshot, creating the directory as needed.
func Write(dataDir string, s SnapshotV1) error {
	if err := os.MkdirAll(Dir(dataDir), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(PathFor(dataDir, s.Tick), b, 0o644)
}

// Read loads a snapshot file.
func Read(path string) (SnapshotV1, error) {
	var s SnapshotV1
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return s, nil
}

// Latest returns the path of the newest snapshot in a run data directory.
// A missing snapshot is an error: resume cannot proceed without one.
func Latest(dataDir string) (string, error) {
	entries, err := os.ReadDir(Dir(dataDir))
	if err != nil {
		return "", fmt.Errorf("no snapshots in %s: %w", Dir(dataDir), err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no snapshots in %s", Dir(dataDir))
	}
	sort.Strings(files)
	return filepath.Join(Dir(dataDir), files[len(files)-1]), nil
}
