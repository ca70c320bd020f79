package attendance

import "time"

const (
	// SimilarityThreshold is the minimum score accepted as a face match.
	SimilarityThreshold = 0.85
	// SessionStartHour and SessionStartMinute give the nominal start of
	// every session in server local time.
	SessionStartHour   = 9
	SessionStartMinute = 0
	// GracePeriod is how long after the start an arrival still counts as
	// present.
	GracePeriod = 15 * time.Minute
)

// Policy holds the acceptance and lateness rules.
type Policy struct {
	Threshold   float64
	StartHour   int
	StartMinute int
	GracePeriod time.Duration
}

// DefaultPolicy returns the fixed production policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:   SimilarityThreshold,
		StartHour:   SessionStartHour,
		StartMinute: SessionStartMinute,
		GracePeriod: GracePeriod,
	}
}

// Accepts reports whether score clears the similarity threshold.
func (p Policy) Accepts(score float64) bool {
	return score >= p.Threshold
}

// Classification is the lateness verdict for one check-in.
type Classification struct {
	Status      Status
	IsLate      bool
	LateMinutes int
}

// SessionStart returns the nominal start on now's calendar day, in now's
// location. Course schedules are not consulted.
func (p Policy) SessionStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, p.StartHour, p.StartMinute, 0, 0, now.Location())
}

// Classify compares now with the session start. Elapsed time is floored to
// whole minutes before the grace check, so with a 15 minute grace 09:15:59 is
// still present and 09:16:00 is late by 16 minutes. Seconds never round up.
func (p Policy) Classify(now time.Time) Classification {
	start := p.SessionStart(now)
	if !now.After(start) {
		return Classification{Status: StatusPresent}
	}

	diffMinutes := int(now.Sub(start) / time.Minute)
	if diffMinutes <= int(p.GracePeriod/time.Minute) {
		return Classification{Status: StatusPresent}
	}
	return Classification{Status: StatusLate, IsLate: true, LateMinutes: diffMinutes}
}
