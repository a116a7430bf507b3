// Package estimator computes allowance consumption rates from usage events.
// All functions are pure - no side effects.
package estimator

import (
	"time"

	"github.com/artpar/bundlekeeper/domain/usage"
)

// minElapsedMinutes floors the elapsed span so a burst of events sharing one
// timestamp does not divide by zero.
const minElapsedMinutes = 1e-6

// Estimator holds the sampling parameters (value type).
type Estimator struct {
	Window    time.Duration // Events older than now-Window are ignored
	MaxEvents int           // Stop after this many samples; <= 0 means unbounded
}

// New creates an estimator from minute-based configuration values.
func New(windowMinutes, maxEvents int) Estimator {
	return Estimator{
		Window:    time.Duration(windowMinutes) * time.Minute,
		MaxEvents: maxEvents,
	}
}

// Rate returns consumption in MB per minute over events in the window.
// Events are expected newest-first; sampling stops after MaxEvents qualifying
// events. Returns 0 when nothing qualifies or the sampled total is not positive.
// This is a PURE function.
func (e Estimator) Rate(events []usage.Event, now time.Time) float64 {
	cutoff := now.Add(-e.Window)

	var (
		total    float64
		earliest time.Time
		count    int
	)
	for _, ev := range events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		total += ev.AmountMB
		if count == 0 || ev.Timestamp.Before(earliest) {
			earliest = ev.Timestamp
		}
		count++
		if e.MaxEvents > 0 && count >= e.MaxEvents {
			break
		}
	}

	if count == 0 || total <= 0 {
		return 0
	}

	elapsed := now.Sub(earliest).Minutes()
	if elapsed < minElapsedMinutes {
		elapsed = minElapsedMinutes
	}
	return total / elapsed
}
