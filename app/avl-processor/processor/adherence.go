package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// scheduleDeviation computes how far off schedule a placement is at a given
// instant. A vehicle holding at a wait stop is on time until its scheduled
// departure passes. No-schedule blocks always read as on time.
func scheduleDeviation(block *gtfs.Block, serviceDate time.Time,
	match *avl.SpatialMatch, at time.Time) avl.TemporalDifference {

	if block.NoSchedule {
		return avl.TemporalDifference{}
	}
	if match.AtLayover {
		path := block.StopPath(match.TripIndex, match.StopPathIndex)
		if path != nil {
			departure := gtfs.MakeScheduleTime(serviceDate, path.DepartureSeconds)
			if at.Before(departure) {
				return avl.TemporalDifference{}
			}
			return avl.MakeTemporalDifference(departure, at)
		}
	}
	seconds := block.ScheduleSecondsAt(match.TripIndex, match.StopPathIndex, match.DistanceAlongStopPath)
	return avl.MakeTemporalDifference(gtfs.MakeScheduleTime(serviceDate, seconds), at)
}
