package memory

import (
	"math"
	"regexp"
	"strings"
)

// BM25 parameters. Standard values; the corpus is one agent's own chunks.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

type scoredChunk struct {
	chunk string
	score float64
}

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// bm25Score scores every chunk against the query. An empty query scores
// everything at zero rather than erroring.
func bm25Score(chunks []string, query string) []scoredChunk {
	queryTokens := tokenize(query)
	out := make([]scoredChunk, 0, len(chunks))
	if len(queryTokens) == 0 {
		for _, c := range chunks {
			out = append(out, scoredChunk{chunk: c})
		}
		return out
	}

	n := len(chunks)
	chunkTokens := make([][]string, n)
	totalLen := 0
	for i, c := range chunks {
		chunkTokens[i] = tokenize(c)
		totalLen += len(chunkTokens[i])
	}
	avgLen := float64(totalLen) / math.Max(float64(n), 1)

	// Document frequencies for query terms only.
	df := make(map[string]int, len(queryTokens))
	for _, tokens := range chunkTokens {
		unique := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			unique[t] = true
		}
		for _, qt := range queryTokens {
			if unique[qt] {
				df[qt]++
			}
		}
	}

	for i, c := range chunks {
		tf := make(map[string]int, len(chunkTokens[i]))
		for _, t := range chunkTokens[i] {
			tf[t]++
		}
		dl := float64(len(chunkTokens[i]))
		score := 0.0
		for _, qt := range queryTokens {
			if df[qt] == 0 {
				continue
			}
			idf := math.Log((float64(n)-float64(df[qt])+0.5)/(float64(df[qt])+0.5) + 1)
			freq := float64(tf[qt])
			norm := (freq * (bm25K1 + 1)) / (freq + bm25K1*(1-bm25B+bm25B*dl/math.Max(avgLen, 1)))
			score += idf * norm
		}
		out = append(out, scoredChunk{chunk: c, score: score})
	}
	return out
}
