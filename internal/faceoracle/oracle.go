// Package faceoracle compares a captured face sample against a student's
// stored face reference and reports a similarity score in [0,1].
package faceoracle

import "context"

// Kind identifies how a face reference is stored.
type Kind string

const (
	KindNone      Kind = ""
	KindEmbedding Kind = "embedding"
	KindToken     Kind = "token"
)

// Reference is a stored biometric descriptor. Exactly one of Embedding or
// Token is set for a registered student; neither is set otherwise.
type Reference struct {
	Embedding []float64
	Token     string
}

// EmbeddingReference builds a reference backed by a numeric vector.
func EmbeddingReference(vec []float64) Reference {
	return Reference{Embedding: vec}
}

// TokenReference builds a reference issued by the remote provider.
func TokenReference(token string) Reference {
	return Reference{Token: token}
}

// Kind reports which storage strategy r uses. A reference carrying both a
// vector and a token is malformed and reported as KindNone.
func (r Reference) Kind() Kind {
	switch {
	case len(r.Embedding) > 0 && r.Token != "":
		return KindNone
	case len(r.Embedding) > 0:
		return KindEmbedding
	case r.Token != "":
		return KindToken
	default:
		return KindNone
	}
}

// Registered reports whether r holds a usable reference.
func (r Reference) Registered() bool {
	return r.Kind() != KindNone
}

// Sample is a freshly captured face: either a client-computed embedding or a
// raw image for the remote provider.
type Sample struct {
	Embedding []float64
	Image     []byte
}

// Oracle scores a sample against a reference.
type Oracle interface {
	Verify(ctx context.Context, ref Reference, sample Sample) (float64, error)
}

// Enroller turns a face image into a provider-issued reference token.
type Enroller interface {
	Enroll(ctx context.Context, image []byte) (string, error)
}
