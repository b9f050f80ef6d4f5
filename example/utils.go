package example

import (
	"fmt"
	"math"
	"strings"
)

// FormatSubset returns a compact string of a subset.
// maxResults specifies how many items to include.
func FormatSubset(subset []int, maxResults int) string {
	limit := min(maxResults, len(subset))
	parts := make([]string, 0, limit+1)
	for i := 0; i < limit; i++ {
		parts = append(parts, fmt.Sprintf("%d", subset[i]))
	}
	if limit < len(subset) {
		parts = append(parts, "...")
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Recall computes the fraction of ground-truth columns found in predicted.
func Recall(predicted, groundTruth []int) float64 {
	if len(groundTruth) == 0 {
		return 0.0
	}
	predSet := make(map[int]struct{}, len(predicted))
	for _, id := range predicted {
		predSet[id] = struct{}{}
	}
	correct := 0
	for _, id := range groundTruth {
		if _, ok := predSet[id]; ok {
			correct++
		}
	}
	return float64(correct) / float64(len(groundTruth))
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 1 when both are empty.
func Jaccard(a, b []int) float64 {
	set := make(map[int]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[int]struct{}, len(b))
	for _, id := range b {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// RelativeGap returns (objective − best) / best; NaN when best is not positive.
func RelativeGap(objective, best float64) float64 {
	if best <= 0 || math.IsNaN(objective) {
		return math.NaN()
	}
	return (objective - best) / best
}
