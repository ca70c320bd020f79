// Package clock abstracts wall-clock reads so attendance decisions can be
// evaluated against a fixed instant in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time. Production code injects Real(); tests
// inject a Fake positioned at the instant under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// Fake is a manually driven Clock. It is safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the frozen instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
