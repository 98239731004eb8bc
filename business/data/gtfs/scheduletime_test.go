package gtfs

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestMakeScheduleTime(t *testing.T) {
	is := is.New(t)
	location, err := time.LoadLocation("America/Los_Angeles")
	is.NoErr(err)

	// ordinary day
	serviceDate := time.Date(2023, 3, 6, 0, 0, 0, 0, location)
	at := MakeScheduleTime(serviceDate, 8*60*60)
	is.Equal(at, time.Date(2023, 3, 6, 8, 0, 0, 0, location))

	// schedule seconds past midnight land on the next calendar day
	at = MakeScheduleTime(serviceDate, 25*60*60)
	is.Equal(at, time.Date(2023, 3, 7, 1, 0, 0, 0, location))

	// spring forward, 8am schedule time still lands at 8am wall clock
	springForward := time.Date(2023, 3, 12, 0, 0, 0, 0, location)
	at = MakeScheduleTime(springForward, 8*60*60)
	is.Equal(at, time.Date(2023, 3, 12, 8, 0, 0, 0, location))

	// fall back
	fallBack := time.Date(2023, 11, 5, 0, 0, 0, 0, location)
	at = MakeScheduleTime(fallBack, 8*60*60)
	is.Equal(at, time.Date(2023, 11, 5, 8, 0, 0, 0, location))
}

func TestScheduleSecondsAt(t *testing.T) {
	is := is.New(t)
	location, err := time.LoadLocation("America/Los_Angeles")
	is.NoErr(err)

	for _, serviceDate := range []time.Time{
		time.Date(2023, 3, 6, 0, 0, 0, 0, location),
		time.Date(2023, 3, 12, 0, 0, 0, 0, location),
		time.Date(2023, 11, 5, 0, 0, 0, 0, location),
	} {
		for _, seconds := range []int{0, 6 * 60 * 60, 12 * 60 * 60, 26 * 60 * 60} {
			at := MakeScheduleTime(serviceDate, seconds)
			is.Equal(ScheduleSecondsAt(serviceDate, at), seconds)
		}
	}
}

func TestGet12AmTime(t *testing.T) {
	is := is.New(t)
	location, err := time.LoadLocation("America/Los_Angeles")
	is.NoErr(err)
	at := time.Date(2023, 6, 10, 14, 30, 45, 0, location)
	is.Equal(Get12AmTime(at), time.Date(2023, 6, 10, 0, 0, 0, 0, location))
}
