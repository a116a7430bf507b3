package bundle

// TimeToDepletion returns the minutes until remaining reaches zero at rate.
// The ETA is undefined (ok=false) when rate is not positive.
// This is a PURE function.
func TimeToDepletion(remainingMB, rate float64) (minutes float64, ok bool) {
	if rate <= 0 {
		return 0, false
	}
	return remainingMB / rate, true
}

// ShouldAutoRenew decides renewal eligibility. The absolute floor and the
// projected ETA are both evaluated; either one makes the state eligible.
// This is a PURE function.
func ShouldAutoRenew(cfg Config, remainingMB, rate float64) bool {
	if !cfg.AutoRenewEnabled {
		return false
	}
	belowFloor := remainingMB <= cfg.AbsoluteMinThresholdMB
	eta, ok := TimeToDepletion(remainingMB, rate)
	withinLead := ok && eta <= float64(cfg.LeadTimeMinutes)
	return belowFloor || withinLead
}

// NextCheckMinutes returns the adaptive polling interval: a quarter of the
// ETA clamped to [min, max], or max when there is no consumption signal.
// This is a PURE function.
func NextCheckMinutes(cfg Config, remainingMB, rate float64) float64 {
	lo := float64(cfg.MinCheckIntervalMinutes)
	hi := float64(cfg.MaxCheckIntervalMinutes)

	eta, ok := TimeToDepletion(remainingMB, rate)
	if !ok {
		return hi
	}
	interval := eta / 4
	if interval < lo {
		interval = lo
	}
	if interval > hi {
		interval = hi
	}
	return interval
}
