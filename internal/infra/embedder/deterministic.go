package embedder

import (
	"context"
	"hash/fnv"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
)

// Deterministic avoids network calls by hashing text into a vector. The same
// text always maps to the same vector, which is all the similarity engine
// needs for local dev and tests.
type Deterministic struct {
	dim int
}

// NewDeterministic constructs the embedder.
func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 32
	}
	return &Deterministic{dim: dim}
}

// Embed converts each text into a pseudo-random vector seeded by its hash.
func (e *Deterministic) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, e.dim)
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(text))
		seed := hash.Sum64()
		for j := 0; j < e.dim; j++ {
			seed = seed*1099511628211 + 1469598103934665603
			vector[j] = float32(seed%997) / 997.0
		}
		vectors[i] = vector
	}
	return vectors, nil
}

var _ domain.Embedder = (*Deterministic)(nil)
