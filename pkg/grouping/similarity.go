package grouping

import (
	"github.com/xrash/smetrics"
)

// Similarity scores two grouping keys in [0, 1] as one minus their Levenshtein distance over the
// longer key's length. Identical keys score 1 and an empty key always scores 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	// WagnerFischer compares bytes, so the distance is bounded by the longer byte length.
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}
