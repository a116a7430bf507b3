package estimator

import (
	"math"
	"testing"
	"time"

	"github.com/artpar/bundlekeeper/domain/usage"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ev(ago time.Duration, mb float64) usage.Event {
	return usage.NewEvent(now.Add(-ago), mb)
}

func TestRate_NoEvents(t *testing.T) {
	e := New(60, 24)
	if got := e.Rate(nil, now); got != 0 {
		t.Errorf("Rate(nil) = %v, want 0", got)
	}
}

func TestRate_SingleEvent(t *testing.T) {
	e := New(60, 24)
	got := e.Rate([]usage.Event{ev(10*time.Minute, 500)}, now)
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("Rate = %v, want 50", got)
	}
}

func TestRate_IgnoresEventsOutsideWindow(t *testing.T) {
	e := New(60, 24)
	events := []usage.Event{
		ev(30*time.Minute, 300),
		ev(61*time.Minute, 10000),
	}
	got := e.Rate(events, now)
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("Rate = %v, want 10", got)
	}
}

func TestRate_OnlyOldEvents(t *testing.T) {
	e := New(60, 24)
	if got := e.Rate([]usage.Event{ev(2*time.Hour, 100)}, now); got != 0 {
		t.Errorf("Rate = %v, want 0", got)
	}
}

func TestRate_MaxEventsCapsSamples(t *testing.T) {
	e := New(60, 2)
	// newest-first
	events := []usage.Event{
		ev(5*time.Minute, 10),
		ev(10*time.Minute, 10),
		ev(50*time.Minute, 1000),
	}
	got := e.Rate(events, now)
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("Rate = %v, want 2 (20MB over 10min)", got)
	}
}

func TestRate_SameTimestampUsesEpsilon(t *testing.T) {
	e := New(60, 24)
	got := e.Rate([]usage.Event{ev(0, 1)}, now)
	if math.Abs(got-1e6) > 1e-3 {
		t.Errorf("Rate = %v, want 1e6", got)
	}
}

func TestRate_NonPositiveTotal(t *testing.T) {
	e := New(60, 24)
	events := []usage.Event{ev(time.Minute, 0), ev(2*time.Minute, 0)}
	if got := e.Rate(events, now); got != 0 {
		t.Errorf("Rate = %v, want 0", got)
	}
}

func TestRate_NeverNegative(t *testing.T) {
	e := New(60, 24)
	sets := [][]usage.Event{
		{ev(time.Minute, -5)},
		{ev(time.Minute, -5), ev(2*time.Minute, 3)},
		{ev(-time.Minute, 5)},
		{ev(0, 0)},
	}
	for i, events := range sets {
		if got := e.Rate(events, now); got < 0 {
			t.Errorf("set %d: Rate = %v, want >= 0", i, got)
		}
	}
}

func TestRate_UnorderedInput(t *testing.T) {
	e := New(60, 24)
	events := []usage.Event{
		ev(5*time.Minute, 10),
		ev(20*time.Minute, 30),
		ev(10*time.Minute, 0),
	}
	got := e.Rate(events, now)
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("Rate = %v, want 2 (40MB over 20min)", got)
	}
}
