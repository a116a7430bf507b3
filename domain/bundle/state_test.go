package bundle

import (
	"testing"
	"time"
)

var amsterdam = time.FixedZone("CET", 3600)

func TestNextMidnight(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, amsterdam)
	got := NextMidnight(now, amsterdam)
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, amsterdam)
	if !got.Equal(want) {
		t.Errorf("NextMidnight = %v, want %v", got, want)
	}

	// Exactly at midnight the next boundary is a full day away
	got = NextMidnight(want, amsterdam)
	if !got.Equal(want.AddDate(0, 0, 1)) {
		t.Errorf("NextMidnight(midnight) = %v, want %v", got, want.AddDate(0, 0, 1))
	}
}

func TestApplyDailyReset(t *testing.T) {
	reset := time.Date(2025, 3, 11, 0, 0, 0, 0, amsterdam)
	s := State{
		RemainingMB: 700,
		UsedTodayMB: 300,
		TotalUsedMB: 5000,
		ExpiresAt:   reset.AddDate(0, 0, 20),
		NextResetAt: reset,
	}

	// Before the boundary nothing changes
	before, changed := s.ApplyDailyReset(reset.Add(-time.Second), amsterdam)
	if changed || before != s {
		t.Fatalf("reset applied before boundary: %+v", before)
	}

	after, changed := s.ApplyDailyReset(reset, amsterdam)
	if !changed {
		t.Fatal("reset not applied at boundary")
	}
	if after.UsedTodayMB != 0 {
		t.Errorf("UsedTodayMB = %v, want 0", after.UsedTodayMB)
	}
	if !after.NextResetAt.Equal(reset.AddDate(0, 0, 1)) {
		t.Errorf("NextResetAt = %v, want %v", after.NextResetAt, reset.AddDate(0, 0, 1))
	}
	if after.TotalUsedMB != 5000 || after.RemainingMB != 700 || !after.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("reset touched other fields: %+v", after)
	}

	// A second call on the same instant is a no-op
	if _, changed := after.ApplyDailyReset(reset, amsterdam); changed {
		t.Error("reset applied twice for one boundary")
	}
}

func TestApplyDailyReset_Unscheduled(t *testing.T) {
	s := State{UsedTodayMB: 10}
	if _, changed := s.ApplyDailyReset(time.Now(), amsterdam); changed {
		t.Error("reset applied without a schedule")
	}
}

func TestEnsureResetScheduled(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, amsterdam)

	s, changed := State{}.EnsureResetScheduled(now, amsterdam)
	if !changed || !s.NextResetAt.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, amsterdam)) {
		t.Errorf("EnsureResetScheduled = %v, %v", s.NextResetAt, changed)
	}
	if _, changed := s.EnsureResetScheduled(now.Add(48*time.Hour), amsterdam); changed {
		t.Error("existing schedule overwritten")
	}
}

func TestRecordUsage_FloorsRemaining(t *testing.T) {
	s := State{RemainingMB: 1000, TotalUsedMB: 10}
	s = s.RecordUsage(1500)

	if s.RemainingMB != 0 {
		t.Errorf("RemainingMB = %v, want 0", s.RemainingMB)
	}
	if s.TotalUsedMB != 1510 {
		t.Errorf("TotalUsedMB = %v, want 1510", s.TotalUsedMB)
	}
	if s.UsedTodayMB != 1500 {
		t.Errorf("UsedTodayMB = %v, want 1500", s.UsedTodayMB)
	}
}

func TestCredit_ExpirySetOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	validFor := 720 * time.Hour

	s := State{}.Credit(200, now, validFor)
	if s.RemainingMB != 200 {
		t.Errorf("RemainingMB = %v, want 200", s.RemainingMB)
	}
	if !s.ExpiresAt.Equal(now.Add(validFor)) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, now.Add(validFor))
	}

	later := now.Add(24 * time.Hour)
	s = s.Credit(300, later, validFor)
	if s.RemainingMB != 500 {
		t.Errorf("RemainingMB = %v, want 500", s.RemainingMB)
	}
	if !s.ExpiresAt.Equal(now.Add(validFor)) {
		t.Errorf("ExpiresAt advanced to %v", s.ExpiresAt)
	}
}

func TestStampCheck(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	s := State{}.StampCheck(now, 2.5, 20, true)
	if !s.LastCheckAt.Equal(now) {
		t.Errorf("LastCheckAt = %v", s.LastCheckAt)
	}
	if !s.NextCheckAt.Equal(now.Add(150 * time.Second)) {
		t.Errorf("NextCheckAt = %v", s.NextCheckAt)
	}
	if !s.EstimatedDepletionAt.Equal(now.Add(20 * time.Minute)) {
		t.Errorf("EstimatedDepletionAt = %v", s.EstimatedDepletionAt)
	}

	s = s.StampCheck(now, 60, 0, false)
	if !s.EstimatedDepletionAt.IsZero() {
		t.Errorf("EstimatedDepletionAt = %v, want zero", s.EstimatedDepletionAt)
	}
}

func TestStateDocument_RoundTrip(t *testing.T) {
	s := State{
		RemainingMB: 512.5,
		UsedTodayMB: 3,
		TotalUsedMB: 99,
		ExpiresAt:   time.Unix(1700000000, 250000000),
		NextResetAt: time.Unix(1700050000, 0),
	}

	doc := s.Document()
	if doc.NextCheckTS != nil || doc.LastCheckTS != nil {
		t.Error("unset times should persist as null")
	}
	if *doc.ExpiryTS != 1700000000.25 {
		t.Errorf("ExpiryTS = %v", *doc.ExpiryTS)
	}

	back := doc.State()
	if !back.ExpiresAt.Equal(s.ExpiresAt) || !back.NextResetAt.Equal(s.NextResetAt) {
		t.Errorf("times changed: %+v", back)
	}
	if !back.LastCheckAt.IsZero() {
		t.Errorf("LastCheckAt = %v, want zero", back.LastCheckAt)
	}
	if back.RemainingMB != 512.5 || back.TotalUsedMB != 99 {
		t.Errorf("amounts changed: %+v", back)
	}
}
