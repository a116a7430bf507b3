package clock_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/artpar/bundlekeeper/adapters/clock"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestReal_Timer(t *testing.T) {
	timer := clock.Real{}.NewTimer()
	if timer.C() != nil {
		t.Error("unstarted timer should have a nil channel")
	}

	timer.Start(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	// Restart after firing
	timer.Start(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("restarted timer did not fire")
	}
	timer.Stop()
}

func TestFake_SetAndAdvance(t *testing.T) {
	initial := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(initial)

	if !c.Now().Equal(initial) {
		t.Errorf("Now() = %v, want %v", c.Now(), initial)
	}

	c.Advance(time.Hour)
	c.Advance(30 * time.Minute)
	if want := initial.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}

	newTime := time.Date(2025, 12, 25, 10, 30, 0, 0, time.UTC)
	c.Set(newTime)
	if !c.Now().Equal(newTime) {
		t.Errorf("Now() = %v, want %v", c.Now(), newTime)
	}
}

func TestFake_TimerFiresOnAdvance(t *testing.T) {
	initial := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(initial)

	timer := c.NewTimer()
	timer.Start(10 * time.Second)

	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(9 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case at := <-timer.C():
		if !at.Equal(initial.Add(10 * time.Second)) {
			t.Errorf("fired at %v", at)
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}

	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFake_StoppedTimerDoesNotFire(t *testing.T) {
	c := clock.NewFake(time.Now())
	timer := c.NewTimer()
	timer.Start(time.Second)
	timer.Stop()

	c.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFake_AutoAdvance(t *testing.T) {
	initial := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewAutoFake(initial)

	timer := c.NewTimer()
	timer.Start(time.Second)
	<-timer.C()
	timer.Start(2 * time.Second)
	<-timer.C()

	if want := initial.Add(3 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if got := c.Starts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Starts() = %v, want %v", got, want)
	}
}

func TestFake_BlockUntilStarts(t *testing.T) {
	c := clock.NewFake(time.Now())

	go func() {
		time.Sleep(5 * time.Millisecond)
		c.NewTimer().Start(time.Minute)
	}()

	if !c.BlockUntilStarts(1, time.Second) {
		t.Fatal("BlockUntilStarts timed out")
	}
	if c.BlockUntilStarts(2, 10*time.Millisecond) {
		t.Error("BlockUntilStarts(2) should time out")
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Now())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			timer := c.NewTimer()
			for j := 0; j < 100; j++ {
				_ = c.Now()
				timer.Start(time.Second)
				c.Advance(time.Second)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
	// Test passes if no race conditions
}
