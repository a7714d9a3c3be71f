package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := Initialize(dir, "Swift-Creek"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return dir
}

func TestInitialize_SeedsBuffers(t *testing.T) {
	dir := setupDir(t)

	if got := ReadBuffer(dir, "semantic.md"); got != "I am Swift-Creek. I need food to maintain energy." {
		t.Fatalf("semantic seed = %q", got)
	}
	if got := ReadBuffer(dir, "self.md"); got != "I am Swift-Creek." {
		t.Fatalf("self seed = %q", got)
	}
	if got := ReadBuffer(dir, "episodic.md"); got != "" {
		t.Fatalf("episodic should start empty, got %q", got)
	}
	if got := ReadBuffer(dir, "social.md"); got != "" {
		t.Fatalf("social should start empty, got %q", got)
	}
}

func TestRemember_Appends(t *testing.T) {
	dir := setupDir(t)

	if err := Remember(dir, "Tick 3: found food at (5,5)"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := Remember(dir, "Tick 4: ate until full"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	entries := EpisodicEntries(dir, 10)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0] != "Tick 3: found food at (5,5)" || entries[1] != "Tick 4: ate until full" {
		t.Fatalf("entries out of order: %v", entries)
	}
}

func TestEpisodicEntries_LastN(t *testing.T) {
	dir := setupDir(t)
	for i := 0; i < 5; i++ {
		_ = Remember(dir, "entry "+strings.Repeat("x", i+1))
	}
	entries := EpisodicEntries(dir, 2)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1] != "entry xxxxx" {
		t.Fatalf("last entry = %q", entries[1])
	}
}

func TestRecall_FindsRelevantChunk(t *testing.T) {
	dir := setupDir(t)
	_ = Remember(dir, "Tick 10: found food at (12,7), big source")
	_ = Remember(dir, "Tick 11: met Broad-Stone near the ridge")

	results := Recall(dir, "food location", 3)
	if len(results) == 0 || results[0] == NotFoundSentinel {
		t.Fatalf("recall found nothing for a matching query: %v", results)
	}
	if !strings.Contains(results[0], "food") {
		t.Fatalf("top result unrelated to query: %q", results[0])
	}
}

func TestRecall_RanksBetterMatchFirst(t *testing.T) {
	dir := t.TempDir()
	episodic := "saw a hawk overhead\n\nfound food at the northern creek, lots of food\n\nrested all day\n"
	if err := WriteBuffer(dir, "episodic.md", episodic); err != nil {
		t.Fatal(err)
	}

	results := Recall(dir, "food creek", 3)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if !strings.Contains(results[0], "northern creek") {
		t.Fatalf("best chunk not ranked first: %q", results[0])
	}
}

func TestRecall_NoMatchReturnsSentinel(t *testing.T) {
	dir := t.TempDir()
	_ = WriteBuffer(dir, "episodic.md", "rested all day\n")

	results := Recall(dir, "zzzqqqxxx", 3)
	if len(results) != 1 || results[0] != NotFoundSentinel {
		t.Fatalf("want sentinel, got %v", results)
	}
}

func TestRecall_EmptyQueryReturnsSentinel(t *testing.T) {
	dir := setupDir(t)
	_ = Remember(dir, "Tick 1: something happened")

	results := Recall(dir, "", 3)
	if len(results) != 1 || results[0] != NotFoundSentinel {
		t.Fatalf("want sentinel for empty query, got %v", results)
	}
}

func TestRecall_EmptyCorpusReturnsSentinel(t *testing.T) {
	dir := t.TempDir()
	results := Recall(dir, "food", 3)
	if len(results) != 1 || results[0] != NotFoundSentinel {
		t.Fatalf("want sentinel for empty corpus, got %v", results)
	}
}

func TestRecall_BoundedByMaxResults(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("found food near the hill\n\n")
	}
	_ = WriteBuffer(dir, "episodic.md", sb.String())

	results := Recall(dir, "food", 3)
	if len(results) > 3 {
		t.Fatalf("got %d results, want at most 3", len(results))
	}
}

func TestRecall_Deterministic(t *testing.T) {
	dir := setupDir(t)
	_ = Remember(dir, "Tick 2: found food at (1,2)")
	_ = Remember(dir, "Tick 3: found food at (9,9)")

	a := Recall(dir, "food", 3)
	b := Recall(dir, "food", 3)
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("result %d differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestBuildCompactionPrompt_IncludesState(t *testing.T) {
	dir := setupDir(t)
	_ = Remember(dir, "Tick 5: found food at (3,3)")

	prompt := BuildCompactionPrompt("Swift-Creek", dir, 40)
	for _, want := range []string{
		"[COMPACTION MODE - Tick 40] You are Swift-Creek.",
		"Tick 5: found food at (3,3)",
		"I am Swift-Creek. I need food to maintain energy.",
		"EPISODIC:",
		"SOCIAL:",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("compaction prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestParseCompactionResponse_AllSections(t *testing.T) {
	text := "EPISODIC:\nfound food twice\nSEMANTIC:\nfood clusters north\nSELF:\nI am careful\nSOCIAL:\nBroad-Stone seems honest"
	sections, ok := ParseCompactionResponse(text)
	if !ok {
		t.Fatal("well-formed response rejected")
	}
	if sections["semantic"] != "food clusters north" {
		t.Fatalf("semantic = %q", sections["semantic"])
	}
	if sections["social"] != "Broad-Stone seems honest" {
		t.Fatalf("social = %q", sections["social"])
	}
}

func TestParseCompactionResponse_MissingSectionRejected(t *testing.T) {
	text := "EPISODIC:\na\nSEMANTIC:\nb\nSELF:\nc"
	if _, ok := ParseCompactionResponse(text); ok {
		t.Fatal("response missing SOCIAL accepted")
	}
	if _, ok := ParseCompactionResponse(""); ok {
		t.Fatal("empty response accepted")
	}
}

func TestApplyCompaction_RewritesAllBuffers(t *testing.T) {
	dir := setupDir(t)
	_ = Remember(dir, "Tick 1: x")

	sections := map[string]string{
		"episodic": "one unique event",
		"semantic": "food is scarce",
		"self":     "I am Swift-Creek, a cautious forager",
		"social":   "nobody met yet",
	}
	changes, err := ApplyCompaction(dir, sections, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ReadBuffer(dir, "episodic.md") != "one unique event" {
		t.Fatalf("episodic not rewritten")
	}
	if changes["semantic"].After != "food is scarce" {
		t.Fatalf("change record wrong: %+v", changes["semantic"])
	}
	if changes["episodic"].Before == "" {
		t.Fatal("before state not captured")
	}
}

func TestApplyCompaction_MissingSectionTouchesNothing(t *testing.T) {
	dir := setupDir(t)
	before := ReadBuffer(dir, "semantic.md")

	_, err := ApplyCompaction(dir, map[string]string{"episodic": "x"}, "")
	if err == nil {
		t.Fatal("partial sections accepted")
	}
	if ReadBuffer(dir, "semantic.md") != before {
		t.Fatal("buffer modified despite rejected compaction")
	}
}

func TestApplyCompaction_WritesAuditLog(t *testing.T) {
	dataDir := t.TempDir()
	memDir := filepath.Join(dataDir, "mem")
	if err := Initialize(memDir, "Swift-Creek"); err != nil {
		t.Fatal(err)
	}

	sections := map[string]string{"episodic": "a", "semantic": "b", "self": "c", "social": "d"}
	if _, err := ApplyCompaction(memDir, sections, dataDir); err != nil {
		t.Fatalf("apply: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dataDir, "logs", "compaction.jsonl"))
	if err != nil {
		t.Fatalf("audit log missing: %v", err)
	}
	if !strings.Contains(string(raw), `"after":"b"`) {
		t.Fatalf("audit record incomplete: %s", raw)
	}
}
