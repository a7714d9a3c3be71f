// Package metrics extracts the pre-registered per-tick dependent variables.
//
// The CSV under analysis/ is the canonical stream consumed by external
// analysis; the sqlite index in sqlite.go mirrors it for ad-hoc queries and
// is never read by the engine.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"savannah.ai/internal/sim/action"
	"savannah.ai/internal/sim/agent"
)

var uncertaintyRe = regexp.MustCompile(`(?i)not sure|might be|could be wrong|uncertain|should verify|` +
	`if i remember correctly|possibly|maybe|unsure|don't know|` +
	`hard to tell|can't be certain`)

var selfReferenceRe = regexp.MustCompile(`(?i)I think|I remember|I don't know|my memory|I believe|` +
	`I notice|I recall|I suspect|I'm not|I was|I should|` +
	`I need to check|my understanding`)

var trustRe = regexp.MustCompile(`(?i)trust|distrust|reliable|unreliable|honest|dishonest|` +
	`lying|truthful|suspicious|credible|deceiv`)

var fields = []string{
	"tick",
	"agent_name",
	"energy",
	"alive",
	"action",
	"parse_failed",
	"uncertainty_count",
	"self_reference_count",
	"trust_language_count",
	"memory_management_action",
	"reasoning_length",
	"working_length",
}

// Row is one (tick, agent) metrics record.
type Row struct {
	Tick                   int
	AgentName              string
	Energy                 float64
	Alive                  bool
	Action                 string
	ParseFailed            bool
	UncertaintyCount       int
	SelfReferenceCount     int
	TrustLanguageCount     int
	MemoryManagementAction bool
	ReasoningLength        int
	WorkingLength          int
}

// RowFor computes the metrics row for one agent's parsed action this tick.
func RowFor(a *agent.Agent, tick int, act action.Action) Row {
	text := act.Reasoning + " " + act.Working
	return Row{
		Tick:               tick,
		AgentName:          a.Name,
		Energy:             a.Energy,
		Alive:              a.Alive,
		Action:             act.Name,
		ParseFailed:        act.ParseFailed,
		UncertaintyCount:   len(uncertaintyRe.FindAllString(text, -1)),
		SelfReferenceCount: len(selfReferenceRe.FindAllString(text, -1)),
		TrustLanguageCount: len(trustRe.FindAllString(text, -1)),
		MemoryManagementAction: act.Name == "recall" ||
			act.Name == "remember" || act.Name == "compact",
		ReasoningLength: len(act.Reasoning),
		WorkingLength:   len(act.Working),
	}
}

// Append writes rows to analysis/metrics.csv, emitting the header on first
// write.
func Append(dataDir string, rows []Row) error {
	dir := filepath.Join(dataDir, "analysis")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "metrics.csv")
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(fields); err != nil {
			return err
		}
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Tick),
			r.AgentName,
			fmt.Sprintf("%.1f", r.Energy),
			boolField(r.Alive),
			r.Action,
			boolField(r.ParseFailed),
			strconv.Itoa(r.UncertaintyCount),
			strconv.Itoa(r.SelfReferenceCount),
			strconv.Itoa(r.TrustLanguageCount),
			boolField(r.MemoryManagementAction),
			strconv.Itoa(r.ReasoningLength),
			strconv.Itoa(r.WorkingLength),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func boolField(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
