package directory

import (
	"sort"
	"strings"
)

const (
	suggestCutoff = 0.6
	suggestMax    = 3
)

// Suggest returns up to three known names ranked by similarity to input,
// for "did you mean" hints when a network is not in the directory.
func Suggest(input string, known []string) []string {
	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	for _, name := range known {
		if s := similarity(strings.ToLower(input), strings.ToLower(name)); s >= suggestCutoff {
			candidates = append(candidates, scored{name: name, score: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > suggestMax {
		candidates = candidates[:suggestMax]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// similarity maps edit distance onto [0,1], 1 meaning identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
