package retrieval

import "strings"

// applyMMR reorders candidates by maximum marginal relevance: each step
// picks the candidate maximizing lambda*relevance - (1-lambda)*maxSimilarity
// to the already selected set. Similarity is token Jaccard overlap of the
// chunk texts, which is enough to push near-duplicate chunks apart without
// keeping embeddings around.
func applyMMR(candidates []Candidate, lambda float64, n int) []Candidate {
	if len(candidates) <= 1 {
		return candidates
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	tokens := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		tokens[i] = tokenSet(c.Chunk.Text)
	}

	selected := make([]Candidate, 0, n)
	selectedTokens := make([]map[string]struct{}, 0, n)
	remaining := make([]int, 0, len(candidates)-1)

	// The top-ranked candidate always survives.
	selected = append(selected, candidates[0])
	selectedTokens = append(selectedTokens, tokens[0])
	for i := 1; i < len(candidates); i++ {
		remaining = append(remaining, i)
	}

	for len(selected) < n && len(remaining) > 0 {
		bestPos, bestScore := 0, -1.0
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, sel := range selectedTokens {
				if sim := jaccard(tokens[idx], sel); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*candidates[idx].Combined - (1-lambda)*maxSim
			if score > bestScore {
				bestPos, bestScore = pos, score
			}
		}

		idx := remaining[bestPos]
		selected = append(selected, candidates[idx])
		selectedTokens = append(selectedTokens, tokens[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, ".,;:!?()\"'")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	common := 0
	for t := range small {
		if _, ok := large[t]; ok {
			common++
		}
	}
	return float64(common) / float64(len(a)+len(b)-common)
}
