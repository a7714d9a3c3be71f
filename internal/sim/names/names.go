// Package names generates human-readable agent names.
//
// Names are nature-themed compounds like "Bright-Creek" or "Swift-Stone".
// They carry no personality implications; they are arbitrary labels.
package names

import (
	"fmt"
	"math/rand"
	"sort"
)

var adjectives = []string{
	"Bright", "Swift", "Broad", "Dark", "Deep", "Dry", "Far", "Fast",
	"Flat", "Gold", "Gray", "Half", "Hard", "High", "Dense", "Last",
	"Late", "Lean", "Long", "Blank", "Low", "Near", "New", "Old",
	"Pale", "Red", "Round", "Rough", "Sharp", "Slow", "Small", "Soft",
	"Still", "Tall", "Thin", "Steep", "Warm", "West", "Wide", "North",
}

var nouns = []string{
	"Ash", "Bank", "Bark", "Bay", "Birch", "Bluff", "Brook", "Clay",
	"Cliff", "Cloud", "Cove", "Creek", "Crest", "Dale", "Dawn", "Dell",
	"Dew", "Drift", "Dune", "Dust", "Elm", "Fern", "Field", "Flint",
	"Fog", "Ford", "Frost", "Glen", "Grove", "Hawk", "Heath", "Hill",
	"Holt", "Ivy", "Lake", "Leaf", "Marsh", "Mist", "Moss", "Oak",
	"Path", "Peak", "Pine", "Pond", "Rain", "Reed", "Ridge", "Rock",
	"Root", "Rush", "Sand", "Shade", "Shore", "Sky", "Slate", "Snow",
	"Spring", "Star", "Stone", "Storm", "Thorn", "Tide", "Vale", "Wind",
}

// Generate returns exactly count unique names, deterministically for a seed.
func Generate(count int, seed int64) ([]string, error) {
	if count > len(adjectives)*len(nouns) {
		return nil, fmt.Errorf("cannot generate %d unique names", count)
	}
	rng := rand.New(rand.NewSource(seed))

	adjs := append([]string(nil), adjectives...)
	ns := append([]string(nil), nouns...)
	rng.Shuffle(len(adjs), func(i, j int) { adjs[i], adjs[j] = adjs[j], adjs[i] })
	rng.Shuffle(len(ns), func(i, j int) { ns[i], ns[j] = ns[j], ns[i] })

	seen := make(map[string]bool, count)
	var out []string
	for _, adj := range adjs {
		for _, noun := range ns {
			name := adj + "-" + noun
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
			if len(out) >= count {
				sort.Strings(out)
				return out, nil
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
