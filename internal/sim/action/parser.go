// Package action parses agent responses into structured actions.
//
// Parsing never fails hard: anything unparseable degrades to a rest action
// with ParseFailed set, keeping whatever notes and reasoning were extracted.
package action

import (
	"regexp"
	"strings"
)

// Action is the structured result of parsing one agent response.
type Action struct {
	Name        string
	Args        string
	Working     string
	Reasoning   string
	ParseFailed bool
}

var backtickRe = regexp.MustCompile("`+")

type pattern struct {
	name string
	re   *regexp.Regexp
}

// Ordered: more specific patterns first so bare verbs cannot shadow
// argument forms (e.g. direction tokens before "rest").
var actionPatterns = []pattern{
	{"move", regexp.MustCompile(`(?i)move\s*\(\s*(n|s|e|w)\s*\)`)},
	{"flee", regexp.MustCompile(`(?i)flee\s*\(\s*(n|s|e|w)\s*\)`)},
	{"eat", regexp.MustCompile(`(?i)\beat\b`)},
	{"recall", regexp.MustCompile(`(?i)recall\s*\(\s*["']([^"']+)["']\s*\)`)},
	{"remember", regexp.MustCompile(`(?i)remember\s*\(\s*["']([^"']+)["']\s*\)`)},
	{"signal", regexp.MustCompile(`(?i)signal\s*\(\s*["']([^"']+)["']\s*\)`)},
	{"attack", regexp.MustCompile(`(?i)attack\s*\(\s*([a-zA-Z][\w-]*)\s*\)`)},
	{"compact", regexp.MustCompile(`(?i)\bcompact\b`)},
	{"observe", regexp.MustCompile(`(?i)\bobserve\b`)},
	{"rest", regexp.MustCompile(`(?i)\brest\b`)},
}

var sectionRe = regexp.MustCompile(`(?im)^(ACTION|WORKING|REASONING)\s*:[ \t]*`)

// Parse extracts the ACTION/WORKING/REASONING sections from a raw response
// and matches the action text against the known action table.
func Parse(raw string) Action {
	if strings.TrimSpace(raw) == "" {
		return defaultRest("Empty response")
	}

	sections := extractSections(raw)
	actionText := strings.TrimSpace(sections["action"])
	working := strings.TrimSpace(sections["working"])
	reasoning := strings.TrimSpace(sections["reasoning"])

	if actionText == "" {
		a := defaultRest(raw)
		a.Working = working
		if reasoning != "" {
			a.Reasoning = reasoning
		}
		return a
	}

	// LLMs like wrapping actions in markdown backticks.
	actionText = strings.TrimSpace(backtickRe.ReplaceAllString(actionText, ""))

	for _, p := range actionPatterns {
		m := p.re.FindStringSubmatch(actionText)
		if m == nil {
			continue
		}
		args := ""
		if len(m) > 1 {
			args = strings.TrimSpace(m[1])
		}
		return Action{
			Name:      p.name,
			Args:      args,
			Working:   working,
			Reasoning: reasoning,
		}
	}

	return Action{
		Name:        "rest",
		Working:     working,
		Reasoning:   reasoning,
		ParseFailed: true,
	}
}

// extractSections splits a response at section labels, capturing each body up
// to the next label or end of text. Multi-line bodies and embedded colons are
// preserved; a repeated label overwrites the earlier one, so the last wins.
func extractSections(text string) map[string]string {
	sections := make(map[string]string)
	matches := sectionRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		label := strings.ToLower(text[m[2]:m[3]])
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[label] = strings.TrimSpace(text[start:end])
	}
	return sections
}

func defaultRest(context string) Action {
	if len(context) > 100 {
		context = context[:100]
	}
	return Action{
		Name:        "rest",
		Reasoning:   "(parse failure: " + context + ")",
		ParseFailed: true,
	}
}
