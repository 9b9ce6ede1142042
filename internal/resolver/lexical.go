package resolver

import (
	"context"

	"topictree/internal/similarity"
)

// LexicalScorer scores each candidate by how much of it the text covers.
// It needs no model and is used when no embedding endpoint is configured.
type LexicalScorer struct{}

func (LexicalScorer) Score(_ context.Context, text string, candidates []string) (int, float64, error) {
	bestIdx, bestScore := 0, -1.0
	for i, candidate := range candidates {
		if score := similarity.Coverage(text, candidate); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return bestIdx, bestScore, nil
}
