// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// NewTimer returns a stopped wall-clock timer.
func (Real) NewTimer() ports.Timer {
	return &realTimer{}
}

// Ensure interface compliance.
var _ ports.Clock = Real{}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Stop()
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *realTimer) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.C
}

// Fake provides a controllable clock for testing.
// Every timer start is recorded so tests can assert sleep durations.
// In auto-advance mode a started timer moves the clock forward by its
// duration and fires at once.
type Fake struct {
	mu          sync.Mutex
	current     time.Time
	autoAdvance bool
	timers      []*fakeTimer
	starts      []time.Duration
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewAutoFake creates a fake clock in auto-advance mode.
func NewAutoFake(t time.Time) *Fake {
	return &Fake{current: t, autoAdvance: true}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Set sets the fake current time. Due timers fire.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
	f.fireDueLocked()
}

// Advance moves the fake time forward by duration d. Due timers fire.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	f.fireDueLocked()
}

// NewTimer returns a stopped timer driven by the fake clock.
func (f *Fake) NewTimer() ports.Timer {
	t := &fakeTimer{clock: f, c: make(chan time.Time, 1)}
	f.mu.Lock()
	f.timers = append(f.timers, t)
	f.mu.Unlock()
	return t
}

// Starts returns every duration passed to a timer Start, in order.
func (f *Fake) Starts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.starts))
	copy(out, f.starts)
	return out
}

// Pending reports how many timers are armed and not yet fired.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if t.armed {
			n++
		}
	}
	return n
}

// BlockUntilStarts waits until at least n timer starts were recorded.
// Returns false if that does not happen within timeout (wall clock).
func (f *Fake) BlockUntilStarts(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		got := len(f.starts)
		f.mu.Unlock()
		if got >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Fake) fireDueLocked() {
	for _, t := range f.timers {
		if t.armed && !f.current.Before(t.deadline) {
			t.armed = false
			t.send(f.current)
		}
	}
}

// Ensure interface compliance.
var _ ports.Clock = (*Fake)(nil)

type fakeTimer struct {
	clock    *Fake
	c        chan time.Time
	deadline time.Time
	armed    bool
}

func (t *fakeTimer) Start(d time.Duration) {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()

	f.starts = append(f.starts, d)
	t.drain()
	if f.autoAdvance {
		f.current = f.current.Add(d)
		t.armed = false
		t.send(f.current)
		return
	}
	t.deadline = f.current.Add(d)
	t.armed = true
	if d <= 0 {
		t.armed = false
		t.send(f.current)
	}
}

func (t *fakeTimer) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.armed = false
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *fakeTimer) send(at time.Time) {
	select {
	case t.c <- at:
	default:
	}
}

func (t *fakeTimer) drain() {
	select {
	case <-t.c:
	default:
	}
}
