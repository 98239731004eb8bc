package gtfs

import (
	"time"
)

// MaximumScheduleSeconds is the largest schedule time a trip may carry,
// 30 hours past the service date midnight.
const MaximumScheduleSeconds int = 60 * 60 * 30

// getDLSTransitionSeconds provides the number of seconds offset for a 12am date later in the day after day light saving time is done
func getDLSTransitionSeconds(timeAt12 time.Time) int {
	before := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 0, 0, 0, 0, timeAt12.Location())
	after := time.Date(timeAt12.Year(), timeAt12.Month(), timeAt12.Day(), 5, 0, 0, 0, timeAt12.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// MakeScheduleTime produces a time from by adding seconds to a 12am date. Takes into account day light saving time
func MakeScheduleTime(timeAt12 time.Time, scheduleSeconds int) time.Time {
	offset := getDLSTransitionSeconds(timeAt12)
	scheduleSeconds = scheduleSeconds + (0 - offset)
	return timeAt12.Add(time.Duration(scheduleSeconds) * time.Second)
}

// Get12AmTime truncates date to midnight in its own location.
func Get12AmTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// ScheduleSecondsAt converts an instant back into schedule seconds past the
// service date's midnight, the inverse of MakeScheduleTime.
func ScheduleSecondsAt(serviceDate time.Time, at time.Time) int {
	offset := getDLSTransitionSeconds(serviceDate)
	return int(at.Unix()-Get12AmTime(serviceDate).Unix()) + offset
}
