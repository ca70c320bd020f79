package faceoracle

import (
	"context"
	"math"
)

const strategyCosine = "cosine"

// Cosine compares embeddings locally.
type Cosine struct{}

// NewCosine returns the local embedding strategy.
func NewCosine() *Cosine { return &Cosine{} }

// Verify scores sample.Embedding against ref.Embedding. Degenerate vectors
// score 0 rather than failing; only a missing vector is an error.
func (c *Cosine) Verify(ctx context.Context, ref Reference, sample Sample) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewVerificationError(strategyCosine, err)
	}
	if ref.Kind() != KindEmbedding {
		return 0, NewVerificationError(strategyCosine, ErrMalformedReference)
	}
	if sample.Embedding == nil {
		return 0, NewVerificationError(strategyCosine, ErrUnsupportedSample)
	}
	return Similarity(ref.Embedding, sample.Embedding), nil
}

// Similarity returns the cosine similarity of a and b clamped to [0,1]. It
// returns 0 for empty or mismatched vectors, non-finite components and
// zero-norm vectors.
func Similarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i], b[i]
		if !finite(x) || !finite(y) {
			return 0
		}
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim), math.IsInf(sim, 0), sim <= 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
