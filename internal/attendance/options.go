package attendance

import (
	"time"

	"github.com/example/face-attendance/internal/clock"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLocation sets the server time zone used for date keys and lateness.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithPolicy overrides the acceptance and lateness policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithOracleTimeout bounds each oracle call.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

// WithRecorder reports decisions to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}
