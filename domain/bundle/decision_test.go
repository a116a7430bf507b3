package bundle

import (
	"math"
	"testing"
)

func TestTimeToDepletion(t *testing.T) {
	if _, ok := TimeToDepletion(1000, 0); ok {
		t.Error("ETA should be undefined for zero rate")
	}
	if _, ok := TimeToDepletion(1000, -1); ok {
		t.Error("ETA should be undefined for negative rate")
	}
	eta, ok := TimeToDepletion(1000, 50)
	if !ok || eta != 20 {
		t.Errorf("TimeToDepletion(1000, 50) = %v, %v; want 20, true", eta, ok)
	}
	eta, ok = TimeToDepletion(0, 5)
	if !ok || eta != 0 {
		t.Errorf("TimeToDepletion(0, 5) = %v, %v; want 0, true", eta, ok)
	}
}

func TestShouldAutoRenew(t *testing.T) {
	cfg := Defaults() // threshold 100, lead 30

	tests := []struct {
		name      string
		enabled   bool
		remaining float64
		rate      float64
		want      bool
	}{
		{"disabled below floor", false, 10, 0, false},
		{"at floor no rate", true, 100, 0, true},
		{"below floor no rate", true, 0, 0, true},
		{"above floor no rate", true, 500, 0, false},
		{"eta within lead", true, 1000, 50, true},
		{"eta exactly lead", true, 900, 30, true},
		{"eta beyond lead", true, 1000, 10, false},
		{"floor with slow rate", true, 80, 0.001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.AutoRenewEnabled = tt.enabled
			if got := ShouldAutoRenew(c, tt.remaining, tt.rate); got != tt.want {
				t.Errorf("ShouldAutoRenew(%v, %v) = %v, want %v", tt.remaining, tt.rate, got, tt.want)
			}
		})
	}
}

func TestShouldAutoRenew_FloorIndependentOfRate(t *testing.T) {
	cfg := Defaults()
	for _, threshold := range []float64{0, 1, 100, 5000} {
		cfg.AbsoluteMinThresholdMB = threshold
		for _, remaining := range []float64{0, threshold / 2, threshold} {
			for _, rate := range []float64{0, 0.0001, 1, 1e6} {
				if !ShouldAutoRenew(cfg, remaining, rate) {
					t.Errorf("threshold=%v remaining=%v rate=%v: want renew", threshold, remaining, rate)
				}
			}
		}
	}
}

func TestNextCheckMinutes(t *testing.T) {
	cfg := Defaults() // min 1, max 60

	tests := []struct {
		name      string
		remaining float64
		rate      float64
		want      float64
	}{
		{"no rate", 1000, 0, 60},
		{"negative rate", 1000, -3, 60},
		{"quarter of eta", 1000, 10, 25},
		{"clamped to max", 100000, 1, 60},
		{"clamped to min", 10, 50, 1},
		{"depleted", 0, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextCheckMinutes(cfg, tt.remaining, tt.rate); got != tt.want {
				t.Errorf("NextCheckMinutes(%v, %v) = %v, want %v", tt.remaining, tt.rate, got, tt.want)
			}
		})
	}
}

func TestNextCheckMinutes_AlwaysClamped(t *testing.T) {
	cfg := Defaults()
	cfg.MinCheckIntervalMinutes = 5
	cfg.MaxCheckIntervalMinutes = 15

	for _, remaining := range []float64{0, 1, 50, 1000, 1e9} {
		for _, rate := range []float64{-1, 0, 1e-9, 0.5, 3, 1e9, math.Inf(1)} {
			got := NextCheckMinutes(cfg, remaining, rate)
			if got < 5 || got > 15 {
				t.Errorf("NextCheckMinutes(%v, %v) = %v, outside [5, 15]", remaining, rate, got)
			}
		}
	}
}
