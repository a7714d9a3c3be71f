// Package memory implements the four file-backed memory buffers and the
// keyword recall over them.
//
// Each agent owns a memory directory with four buffers: episodic.md
// (append-only), semantic.md, self.md and social.md. The only operation that
// rewrites all four is compaction, and it is all-or-nothing.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// NotFoundSentinel is returned by Recall when nothing scores above zero.
// Recall never returns an error.
const NotFoundSentinel = "No relevant memories found."

// Buffer file names in their fixed read order. The order matters: recall
// chunk ids and tie-breaking are stable only if the corpus order is.
var bufferFiles = []string{"episodic.md", "semantic.md", "self.md", "social.md"}

var paragraphRe = regexp.MustCompile(`\n\n+`)

// Remember appends an entry to the episodic buffer.
func Remember(memoryDir, text string) error {
	path := filepath.Join(memoryDir, "episodic.md")
	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	out := string(current) + "\n" + strings.TrimSpace(text) + "\n"
	return os.WriteFile(path, []byte(out), 0o644)
}

// Recall searches all four buffers for paragraph chunks matching the query
// and returns the top maxResults positive-score chunks by BM25. Empty query
// or empty corpus yields the not-found sentinel.
func Recall(memoryDir, query string, maxResults int) []string {
	chunks := loadChunks(memoryDir)
	if len(chunks) == 0 {
		return []string{NotFoundSentinel}
	}

	scored := bm25Score(chunks, query)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	var results []string
	for _, s := range scored {
		if s.score > 0 {
			results = append(results, s.chunk)
		}
	}
	if len(results) == 0 {
		return []string{NotFoundSentinel}
	}
	return results
}

// EpisodicEntries returns the last n non-blank lines of episodic memory.
func EpisodicEntries(memoryDir string, n int) []string {
	raw, err := os.ReadFile(filepath.Join(memoryDir, "episodic.md"))
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// ReadBuffer reads a memory buffer, returning "" when missing.
func ReadBuffer(memoryDir, filename string) string {
	raw, err := os.ReadFile(filepath.Join(memoryDir, filename))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// WriteBuffer overwrites a memory buffer.
func WriteBuffer(memoryDir, filename, content string) error {
	return os.WriteFile(filepath.Join(memoryDir, filename), []byte(content), 0o644)
}

// Initialize creates the four buffers for a fresh agent. All agents start
// with identical content apart from their own name.
func Initialize(memoryDir, name string) error {
	if err := os.MkdirAll(memoryDir, 0o755); err != nil {
		return err
	}
	seeds := map[string]string{
		"episodic.md": "",
		"semantic.md": fmt.Sprintf("I am %s. I need food to maintain energy.", name),
		"self.md":     fmt.Sprintf("I am %s.", name),
		"social.md":   "",
	}
	for _, f := range bufferFiles {
		if err := WriteBuffer(memoryDir, f, seeds[f]); err != nil {
			return err
		}
	}
	return nil
}

func loadChunks(memoryDir string) []string {
	var chunks []string
	for _, f := range bufferFiles {
		raw, err := os.ReadFile(filepath.Join(memoryDir, f))
		if err != nil {
			continue
		}
		for _, p := range paragraphRe.Split(string(raw), -1) {
			if p = strings.TrimSpace(p); p != "" {
				chunks = append(chunks, p)
			}
		}
	}
	return chunks
}
