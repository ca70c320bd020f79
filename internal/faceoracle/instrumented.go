package faceoracle

import (
	"context"
	"time"
)

// Observer receives the latency and result of each oracle call.
type Observer interface {
	ObserveOracle(strategy, result string, elapsed time.Duration)
}

// Instrumented reports every call of next to an Observer.
type Instrumented struct {
	next     Oracle
	strategy string
	observer Observer
}

// Instrument wraps next. A nil observer disables reporting.
func Instrument(next Oracle, strategy string, observer Observer) Oracle {
	if observer == nil {
		return next
	}
	return &Instrumented{next: next, strategy: strategy, observer: observer}
}

func (i *Instrumented) Verify(ctx context.Context, ref Reference, sample Sample) (float64, error) {
	start := time.Now()
	score, err := i.next.Verify(ctx, ref, sample)
	result := "ok"
	switch {
	case IsTimeout(err):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	i.observer.ObserveOracle(i.strategy, result, time.Since(start))
	return score, err
}
