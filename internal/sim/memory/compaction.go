package memory

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	persistlog "savannah.ai/internal/persistence/log"
)

// compactionWindow is how many recent episodic entries are offered for
// summarization.
const compactionWindow = 30

var compactionSectionRe = regexp.MustCompile(`(?im)^(EPISODIC|SEMANTIC|SELF|SOCIAL)\s*:[ \t]*`)

var sectionFiles = map[string]string{
	"episodic": "episodic.md",
	"semantic": "semantic.md",
	"self":     "self.md",
	"social":   "social.md",
}

// BuildCompactionPrompt assembles the directive asking the model to rewrite
// all four buffers from the recent episodes and current contents.
func BuildCompactionPrompt(name, memoryDir string, tick int) string {
	episodes := EpisodicEntries(memoryDir, compactionWindow)
	episodesText := "(none)"
	if len(episodes) > 0 {
		episodesText = strings.Join(episodes, "\n")
	}

	return fmt.Sprintf(`[COMPACTION MODE - Tick %d] You are %s.

Recent episodes (last %d):
%s

Current general knowledge:
%s

Current self-assessment:
%s

Current social knowledge:
%s

Rewrite each file. Summarize episodes into general knowledge. Remove redundant episodes. Update your self-assessment and social knowledge. Be concise — storage is limited.

Respond in this exact format:
EPISODIC:
(summarized recent episodes, keep only unique events)
SEMANTIC:
(updated general knowledge)
SELF:
(updated self-assessment)
SOCIAL:
(updated social knowledge)`,
		tick, name, compactionWindow, episodesText,
		ReadBuffer(memoryDir, "semantic.md"),
		ReadBuffer(memoryDir, "self.md"),
		ReadBuffer(memoryDir, "social.md"))
}

// ParseCompactionResponse splits a compaction response into its four labeled
// sections. It returns ok=false when any required section is missing; the
// caller must then reject the compaction in full.
func ParseCompactionResponse(text string) (map[string]string, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	sections := make(map[string]string)
	matches := compactionSectionRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		label := strings.ToLower(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[label] = strings.TrimSpace(text[start:end])
	}
	for label := range sectionFiles {
		if _, ok := sections[label]; !ok {
			return nil, false
		}
	}
	return sections, true
}

// BufferChange records one buffer's before/after state for the audit trail.
type BufferChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// ApplyCompaction atomically replaces all four buffers with the parsed
// sections and appends a before/after record to logs/compaction.jsonl when
// dataDir is set. Sections must contain all four labels (enforced by
// ParseCompactionResponse); nothing is written otherwise.
func ApplyCompaction(memoryDir string, sections map[string]string, dataDir string) (map[string]BufferChange, error) {
	for label := range sectionFiles {
		if _, ok := sections[label]; !ok {
			return nil, fmt.Errorf("compaction missing section %q", label)
		}
	}

	result := make(map[string]BufferChange, len(sectionFiles))
	for _, label := range []string{"episodic", "semantic", "self", "social"} {
		file := sectionFiles[label]
		before := ReadBuffer(memoryDir, file)
		if err := WriteBuffer(memoryDir, file, sections[label]); err != nil {
			return nil, err
		}
		result[label] = BufferChange{Before: before, After: sections[label]}
	}

	if dataDir != "" {
		logPath := filepath.Join(dataDir, "logs", "compaction.jsonl")
		if err := persistlog.AppendJSONL(logPath, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}
