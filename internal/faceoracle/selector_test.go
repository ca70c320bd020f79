package faceoracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubOracle struct {
	score float64
	err   error
	calls int
}

func (s *stubOracle) Verify(ctx context.Context, ref Reference, sample Sample) (float64, error) {
	s.calls++
	return s.score, s.err
}

type recordingObserver struct {
	strategy string
	result   string
}

func (r *recordingObserver) ObserveOracle(strategy, result string, elapsed time.Duration) {
	r.strategy = strategy
	r.result = result
}

func TestSelectorRoutesByReferenceKind(t *testing.T) {
	local := &stubOracle{score: 0.9}
	remote := &stubOracle{score: 0.7}
	sel := NewSelector(local, remote)

	score, err := sel.Verify(context.Background(), EmbeddingReference([]float64{1}), Sample{})
	if err != nil || score != 0.9 {
		t.Fatalf("expected embedding strategy score 0.9, got %f (%v)", score, err)
	}
	score, err = sel.Verify(context.Background(), TokenReference("tok"), Sample{})
	if err != nil || score != 0.7 {
		t.Fatalf("expected remote strategy score 0.7, got %f (%v)", score, err)
	}
	if local.calls != 1 || remote.calls != 1 {
		t.Fatalf("unexpected call counts local=%d remote=%d", local.calls, remote.calls)
	}
}

func TestSelectorWithoutRemoteFailsClosed(t *testing.T) {
	sel := NewSelector(NewCosine(), nil)

	_, err := sel.Verify(context.Background(), TokenReference("tok"), Sample{Image: []byte("x")})
	if !errors.Is(err, ErrProviderDisabled) {
		t.Fatalf("expected provider disabled, got %v", err)
	}

	_, err = sel.Verify(context.Background(), Reference{}, Sample{})
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected verification error for empty reference, got %v", err)
	}
}

func TestInstrumentReportsTimeouts(t *testing.T) {
	obs := &recordingObserver{}
	oracle := Instrument(&stubOracle{err: NewVerificationError("remote", context.DeadlineExceeded)}, "remote", obs)

	if _, err := oracle.Verify(context.Background(), TokenReference("tok"), Sample{}); !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if obs.strategy != "remote" || obs.result != "timeout" {
		t.Fatalf("unexpected observation %+v", obs)
	}

	plain := &stubOracle{}
	if Instrument(plain, "cosine", nil) != Oracle(plain) {
		t.Fatal("nil observer must return the oracle unchanged")
	}
}
