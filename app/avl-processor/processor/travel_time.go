package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// scheduleTravelTimes predicts travel between two block positions straight
// from the schedule. Agencies with historical travel time data can inject a
// richer TravelTimeEstimator; the estimation math is identical either way.
type scheduleTravelTimes struct{}

func newScheduleTravelTimes() *scheduleTravelTimes {
	return &scheduleTravelTimes{}
}

func (tt *scheduleTravelTimes) ExpectedTravelTimeMsec(vehicleId string, serviceDate time.Time,
	block *gtfs.Block, from, to *avl.SpatialMatch) int64 {

	fromSeconds := block.ScheduleSecondsAt(from.TripIndex, from.StopPathIndex, from.DistanceAlongStopPath)
	toSeconds := block.ScheduleSecondsAt(to.TripIndex, to.StopPathIndex, to.DistanceAlongStopPath)
	travel := int64(toSeconds-fromSeconds) * 1000
	if travel < 0 {
		return 0
	}
	return travel
}
