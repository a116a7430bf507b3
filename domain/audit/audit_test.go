package audit

import (
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarning},
		{"Warning", LevelWarning},
		{" error ", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToRecords(t *testing.T) {
	ts := time.Unix(1700000000, 500000000)
	entries := []Entry{
		{ID: 2, Timestamp: ts, Level: LevelError, Message: "second"},
		{ID: 1, Timestamp: ts.Add(-time.Second), Level: LevelInfo, Message: "first"},
	}

	records := ToRecords(entries)

	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].TS != 1700000000.5 {
		t.Errorf("TS = %v, want 1700000000.5", records[0].TS)
	}
	if records[0].Level != "ERROR" || records[0].Message != "second" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Message != "first" {
		t.Errorf("records[1].Message = %q, want first", records[1].Message)
	}
}
