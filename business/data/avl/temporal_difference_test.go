package avl

import (
	"testing"
	"time"
)

func TestTemporalDifferenceBounds(t *testing.T) {
	tests := []struct {
		name           string
		msec           int64
		allowableEarly time.Duration
		allowableLate  time.Duration
		want           bool
	}{
		{"on time", 0, time.Minute, 15 * time.Minute, true},
		{"slightly early", 30_000, time.Minute, 15 * time.Minute, true},
		{"too early", 90_000, time.Minute, 15 * time.Minute, false},
		{"slightly late", -5 * 60_000, time.Minute, 15 * time.Minute, true},
		{"too late", -16 * 60_000, time.Minute, 15 * time.Minute, false},
		{"at early limit", 60_000, time.Minute, 15 * time.Minute, true},
		{"at late limit", -15 * 60_000, time.Minute, 15 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := TemporalDifference{Msec: tt.msec}
			if got := td.WithinBounds(tt.allowableEarly, tt.allowableLate); got != tt.want {
				t.Errorf("WithinBounds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTemporalDifferenceBetterThan(t *testing.T) {
	tests := []struct {
		name  string
		td    int64
		other int64
		ratio float64
		want  bool
	}{
		{"closer late beats further late", -60_000, -120_000, 3.0, true},
		{"late beats equally early when early is weighted", -60_000, 60_000, 3.0, true},
		{"early loses to late at same magnitude", 60_000, -60_000, 3.0, false},
		{"less early beats more early", 30_000, 60_000, 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := TemporalDifference{Msec: tt.td}
			other := TemporalDifference{Msec: tt.other}
			if got := td.BetterThan(other, tt.ratio); got != tt.want {
				t.Errorf("BetterThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMakeTemporalDifference(t *testing.T) {
	scheduled := time.Date(2023, 6, 5, 8, 0, 0, 0, time.UTC)

	// vehicle seen a minute before schedule is early
	td := MakeTemporalDifference(scheduled, scheduled.Add(-time.Minute))
	if !td.Early() || td.Msec != 60_000 {
		t.Errorf("expected 60000 msec early, got %v", td)
	}

	// a minute after is late
	td = MakeTemporalDifference(scheduled, scheduled.Add(time.Minute))
	if !td.Late() || td.Msec != -60_000 {
		t.Errorf("expected 60000 msec late, got %v", td)
	}
}
