// Package usage provides the usage event type and helpers over event slices.
// All functions are pure - no side effects.
package usage

import (
	"sort"
	"time"
)

// Event is a single observed consumption of allowance (immutable value type).
// ID is assigned by the store on insert and is zero before that.
type Event struct {
	ID        int64
	Timestamp time.Time
	AmountMB  float64
}

// NewEvent creates an unsaved event.
func NewEvent(at time.Time, amountMB float64) Event {
	return Event{Timestamp: at, AmountMB: amountMB}
}

// Total sums the amounts of all events.
func Total(events []Event) float64 {
	var total float64
	for _, e := range events {
		total += e.AmountMB
	}
	return total
}

// NewestFirst returns a copy of events ordered by descending timestamp.
// Events sharing a timestamp keep insertion order (higher ID first).
func NewestFirst(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
