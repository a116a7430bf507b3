package bundle

import (
	"math"
	"time"
)

// StateDocument is the persisted and JSON form of State.
// Timestamps are epoch seconds; nil means unset.
type StateDocument struct {
	RemainingMB          float64  `json:"remaining_mb"`
	UsedTodayMB          float64  `json:"used_today_mb"`
	TotalUsedMB          float64  `json:"total_used_mb"`
	ExpiryTS             *float64 `json:"expiry_ts"`
	NextCheckTS          *float64 `json:"next_check_ts"`
	NextResetTS          *float64 `json:"next_reset_ts"`
	EstimatedDepletionTS *float64 `json:"estimated_depletion_ts"`
	LastCheckTS          *float64 `json:"last_check_ts"`
}

// Document converts the state to its persisted form.
func (s State) Document() StateDocument {
	return StateDocument{
		RemainingMB:          s.RemainingMB,
		UsedTodayMB:          s.UsedTodayMB,
		TotalUsedMB:          s.TotalUsedMB,
		ExpiryTS:             EpochPtr(s.ExpiresAt),
		NextCheckTS:          EpochPtr(s.NextCheckAt),
		NextResetTS:          EpochPtr(s.NextResetAt),
		EstimatedDepletionTS: EpochPtr(s.EstimatedDepletionAt),
		LastCheckTS:          EpochPtr(s.LastCheckAt),
	}
}

// State converts a persisted document back to a State.
func (d StateDocument) State() State {
	return State{
		RemainingMB:          math.Max(d.RemainingMB, 0),
		UsedTodayMB:          d.UsedTodayMB,
		TotalUsedMB:          d.TotalUsedMB,
		ExpiresAt:            TimeFromEpochPtr(d.ExpiryTS),
		NextCheckAt:          TimeFromEpochPtr(d.NextCheckTS),
		NextResetAt:          TimeFromEpochPtr(d.NextResetTS),
		EstimatedDepletionAt: TimeFromEpochPtr(d.EstimatedDepletionTS),
		LastCheckAt:          TimeFromEpochPtr(d.LastCheckTS),
	}
}

// Epoch returns t as fractional epoch seconds.
func Epoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// EpochPtr returns nil for the zero time.
func EpochPtr(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	v := Epoch(t)
	return &v
}

// TimeFromEpoch converts fractional epoch seconds with microsecond precision.
func TimeFromEpoch(sec float64) time.Time {
	whole := math.Floor(sec)
	micros := math.Round((sec - whole) * 1e6)
	return time.Unix(int64(whole), int64(micros)*int64(time.Microsecond))
}

// TimeFromEpochPtr returns the zero time for nil.
func TimeFromEpochPtr(sec *float64) time.Time {
	if sec == nil {
		return time.Time{}
	}
	return TimeFromEpoch(*sec)
}
