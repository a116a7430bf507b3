package usage

import (
	"testing"
	"time"
)

func TestTotal(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		NewEvent(now, 10),
		NewEvent(now.Add(time.Minute), 2.5),
		NewEvent(now.Add(2*time.Minute), 0),
	}

	if got := Total(events); got != 12.5 {
		t.Errorf("Total() = %v, want 12.5", got)
	}
	if got := Total(nil); got != 0 {
		t.Errorf("Total(nil) = %v, want 0", got)
	}
}

func TestNewestFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, Timestamp: base, AmountMB: 1},
		{ID: 2, Timestamp: base.Add(2 * time.Minute), AmountMB: 2},
		{ID: 3, Timestamp: base.Add(time.Minute), AmountMB: 3},
		{ID: 4, Timestamp: base.Add(2 * time.Minute), AmountMB: 4},
	}

	got := NewestFirst(events)

	wantIDs := []int64{4, 2, 3, 1}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("position %d: ID = %d, want %d", i, got[i].ID, id)
		}
	}

	// Input must not be reordered
	if events[0].ID != 1 || events[3].ID != 4 {
		t.Error("NewestFirst mutated its input")
	}
}
