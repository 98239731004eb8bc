package avl

import (
	"fmt"
	"time"
)

// TemporalDifference is how far off schedule a vehicle is, in milliseconds.
// Positive values mean early, negative mean late.
type TemporalDifference struct {
	Msec int64
}

// MakeTemporalDifference builds a difference from the scheduled and actual
// times of the same event.
func MakeTemporalDifference(scheduled, actual time.Time) TemporalDifference {
	return TemporalDifference{Msec: scheduled.UnixMilli() - actual.UnixMilli()}
}

func (td TemporalDifference) Early() bool {
	return td.Msec > 0
}

func (td TemporalDifference) Late() bool {
	return td.Msec < 0
}

// EarlierThan reports whether td is earlier than limit.
func (td TemporalDifference) EarlierThan(limit time.Duration) bool {
	return td.Msec > limit.Milliseconds()
}

// LaterThan reports whether td is later than limit.
func (td TemporalDifference) LaterThan(limit time.Duration) bool {
	return -td.Msec > limit.Milliseconds()
}

// WithinBounds reports whether td falls inside the allowable early and late
// limits.
func (td TemporalDifference) WithinBounds(allowableEarly, allowableLate time.Duration) bool {
	return !td.EarlierThan(allowableEarly) && !td.LaterThan(allowableLate)
}

// BetterThan reports whether td is a closer schedule fit than o. Earliness
// is weighted by earlyToLateRatio since running early is worse for riders
// than running late.
func (td TemporalDifference) BetterThan(o TemporalDifference, earlyToLateRatio float64) bool {
	return td.weighted(earlyToLateRatio) < o.weighted(earlyToLateRatio)
}

func (td TemporalDifference) weighted(earlyToLateRatio float64) float64 {
	if td.Msec > 0 {
		return float64(td.Msec) * earlyToLateRatio
	}
	return float64(-td.Msec)
}

func (td TemporalDifference) String() string {
	seconds := float64(td.Msec) / 1000.0
	if seconds < 0 {
		return fmt.Sprintf("%0.1f sec late", -seconds)
	}
	return fmt.Sprintf("%0.1f sec early", seconds)
}
