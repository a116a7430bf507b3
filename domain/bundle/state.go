package bundle

import (
	"time"
)

// State is the locally estimated view of the allowance (value type).
// Zero times mean unset.
type State struct {
	RemainingMB float64 // Never negative
	UsedTodayMB float64 // Zeroed at each daily reset
	TotalUsedMB float64 // Monotonic

	ExpiresAt            time.Time // Set on the first credit only
	NextCheckAt          time.Time
	NextResetAt          time.Time // Next local midnight
	EstimatedDepletionAt time.Time // Derived; zero when no rate is observed
	LastCheckAt          time.Time
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// EnsureResetScheduled sets NextResetAt when it is unset.
// Reports whether the state changed.
func (s State) EnsureResetScheduled(now time.Time, loc *time.Location) (State, bool) {
	if !s.NextResetAt.IsZero() {
		return s, false
	}
	s.NextResetAt = NextMidnight(now, loc)
	return s, true
}

// ApplyDailyReset zeroes UsedTodayMB and advances NextResetAt once now has
// reached the reset boundary. No other field is touched.
// Reports whether a reset happened.
func (s State) ApplyDailyReset(now time.Time, loc *time.Location) (State, bool) {
	if s.NextResetAt.IsZero() || now.Before(s.NextResetAt) {
		return s, false
	}
	s.UsedTodayMB = 0
	s.NextResetAt = NextMidnight(now, loc)
	return s, true
}

// RecordUsage applies consumed allowance. Remaining is floored at zero while
// the usage counters take the full amount.
func (s State) RecordUsage(amountMB float64) State {
	s.UsedTodayMB += amountMB
	s.TotalUsedMB += amountMB
	s.RemainingMB -= amountMB
	if s.RemainingMB < 0 {
		s.RemainingMB = 0
	}
	return s
}

// Credit adds allowance. Expiry is set to now+validFor only when unset.
func (s State) Credit(amountMB float64, now time.Time, validFor time.Duration) State {
	s.RemainingMB += amountMB
	if s.RemainingMB < 0 {
		s.RemainingMB = 0
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(validFor)
	}
	return s
}

// WithRemaining overwrites the remaining allowance with a provider-reported value.
func (s State) WithRemaining(mb float64) State {
	if mb < 0 {
		mb = 0
	}
	s.RemainingMB = mb
	return s
}

// StampCheck records the outcome of a check cycle.
// A negative or undefined ETA clears EstimatedDepletionAt.
func (s State) StampCheck(now time.Time, nextIntervalMinutes float64, etaMinutes float64, etaDefined bool) State {
	s.LastCheckAt = now
	s.NextCheckAt = now.Add(minutes(nextIntervalMinutes))
	if etaDefined {
		s.EstimatedDepletionAt = now.Add(minutes(etaMinutes))
	} else {
		s.EstimatedDepletionAt = time.Time{}
	}
	return s
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
