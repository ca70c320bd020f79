package faceoracle

import "context"

// Selector routes a verification to the strategy matching the kind of
// reference the student registered with.
type Selector struct {
	embedding Oracle
	remote    Oracle
}

// NewSelector builds a Selector. remote may be nil when no provider is
// configured; token references then fail verification.
func NewSelector(embedding, remote Oracle) *Selector {
	return &Selector{embedding: embedding, remote: remote}
}

func (s *Selector) Verify(ctx context.Context, ref Reference, sample Sample) (float64, error) {
	switch ref.Kind() {
	case KindEmbedding:
		if s.embedding == nil {
			return 0, NewVerificationError(string(KindEmbedding), ErrProviderDisabled)
		}
		return s.embedding.Verify(ctx, ref, sample)
	case KindToken:
		if s.remote == nil {
			return 0, NewVerificationError(string(KindToken), ErrProviderDisabled)
		}
		return s.remote.Verify(ctx, ref, sample)
	default:
		return 0, NewVerificationError("selector", ErrMalformedReference)
	}
}
