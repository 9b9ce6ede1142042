package llm

import (
	"context"
	"errors"
	"math"
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// EmbeddingScorer ranks candidate labels by cosine similarity between
// their embeddings and the embedding of the text.
type EmbeddingScorer struct {
	embedder Embedder
}

func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

func (s *EmbeddingScorer) Score(ctx context.Context, text string, candidates []string) (int, float64, error) {
	if len(candidates) == 0 {
		return 0, 0, errors.New("no candidates to score")
	}
	inputs := make([]string, 0, len(candidates)+1)
	inputs = append(inputs, text)
	inputs = append(inputs, candidates...)

	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return 0, 0, err
	}
	query := vectors[0]
	bestIdx, bestScore := 0, math.Inf(-1)
	for i, vec := range vectors[1:] {
		sim := cosineSimilarity(query, vec)
		if sim > bestScore {
			bestIdx, bestScore = i, sim
		}
	}
	return bestIdx, bestScore, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
