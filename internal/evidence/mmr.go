package evidence

import "math"

// maximalMarginalRelevance greedily selects up to k candidate indices,
// trading off relevance to the query against redundancy with already
// selected candidates:
//
//	score(d) = lambda*sim(q,d) - (1-lambda)*max(sim(d,s) for s in selected)
//
// Selection is deterministic: candidates are scanned in input order and
// ties keep the earliest index, so identical inputs always produce the
// identical ranking.
func maximalMarginalRelevance(query []float32, candidates [][]float32, lambda float64, k int) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	// Query similarity is reused across every round.
	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = cosineSimilarity(query, c)
	}

	selected := make([]int, 0, k)
	remaining := make(map[int]struct{}, len(candidates))
	for i := range candidates {
		remaining[i] = struct{}{}
	}

	// maxSelectedSim[i] tracks the highest similarity between candidate i
	// and any already selected candidate.
	maxSelectedSim := make([]float64, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if _, ok := remaining[i]; !ok {
				continue
			}
			score := querySim[i]
			if len(selected) > 0 {
				score = lambda*querySim[i] - (1-lambda)*maxSelectedSim[i]
			}
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}

		selected = append(selected, best)
		delete(remaining, best)

		for i := range candidates {
			if _, ok := remaining[i]; !ok {
				continue
			}
			if sim := cosineSimilarity(candidates[best], candidates[i]); sim > maxSelectedSim[i] {
				maxSelectedSim[i] = sim
			}
		}
	}

	return selected
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
