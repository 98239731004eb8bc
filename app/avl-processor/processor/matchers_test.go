package processor

import (
	"testing"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/matryer/is"
)

func reportAt(latitude, longitude float64) *avl.Report {
	return &avl.Report{
		VehicleId: "101",
		Time:      atSeconds(8*3600 + 300),
		Latitude:  latitude,
		Longitude: longitude,
	}
}

func TestSpatialMatcher_MatchesBetweenStops(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleSpatialMatcher(testIndex(block), &cfg)

	// halfway between A and B, slightly west of the segment
	matches := matcher.MatchesForBlock(reportAt(45.0018, -122.0001), block)
	is.True(len(matches) > 0)

	var onPath *avl.SpatialMatch
	for _, m := range matches {
		if m.Indices.Same(avl.Indices{TripIndex: 0, StopPathIndex: 1}) {
			onPath = m
			break
		}
	}
	is.True(onPath != nil)
	is.True(onPath.DistanceAlongStopPath > 150 && onPath.DistanceAlongStopPath < 250)
	is.True(onPath.DistanceToSegment < 20)
	is.Equal(onPath.AtStop, nil)
}

func TestSpatialMatcher_AtStopDetection(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleSpatialMatcher(testIndex(block), &cfg)

	// sitting exactly on stop B
	matches := matcher.MatchesForBlock(reportAt(45.0036, -122.0), block)
	is.True(len(matches) > 0)

	var atB *avl.SpatialMatch
	for _, m := range matches {
		if m.AtStop != nil && m.AtStop.StopId == "B" {
			atB = m
			break
		}
	}
	is.True(atB != nil)
	is.Equal(atB.AtStop.Indices, avl.Indices{TripIndex: 0, StopPathIndex: 1})
	is.Equal(atB.AtLayover, false)

	// sitting on the wait stop starting the block
	matches = matcher.MatchesForBlock(reportAt(45.0, -122.0), block)
	is.True(len(matches) > 0)
	first := matches[0]
	is.True(first.AtStop != nil)
	is.Equal(first.AtStop.StopId, "A")
	is.True(first.AtLayover)
}

func TestSpatialMatcher_TooFarOffRoute(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleSpatialMatcher(testIndex(block), &cfg)

	// about 800m west of the corridor, past the match distance
	matches := matcher.MatchesForBlock(reportAt(45.002, -122.01), block)
	is.Equal(len(matches), 0)
}

func TestSpatialMatcher_NearPreviousNeverGoesBackwards(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleSpatialMatcher(testIndex(block), &cfg)

	previous := &avl.TemporalMatch{
		SpatialMatch: avl.SpatialMatch{
			Indices:               avl.Indices{TripIndex: 0, StopPathIndex: 2},
			DistanceAlongStopPath: 100,
		},
	}
	// the fix sits back between A and B, behind the previous match
	matches := matcher.MatchesNearPrevious(reportAt(45.0018, -122.0), block, previous)
	for _, m := range matches {
		is.True(!m.Indices.Before(previous.Indices, block.NoSchedule))
	}
}

func TestSpatialMatcher_MatchToLayoverStop(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleSpatialMatcher(testIndex(block), &cfg)

	// about 400m east of stop A, off route but near the layover
	match := matcher.MatchToLayoverStop(reportAt(45.0, -121.995), block)
	is.True(match != nil)
	is.Equal(match.AtStop.StopId, "A")
	is.True(match.AtLayover)

	// kilometers away matches nothing
	match = matcher.MatchToLayoverStop(reportAt(45.2, -122.0), block)
	is.Equal(match, nil)
}

func TestTemporalMatcher_PicksClosestToSchedule(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	cfg := DefaultConfig()
	matcher := newScheduleTemporalMatcher(&cfg)

	// at 8:35 the same position fits trip two far better than trip one
	report := reportAt(45.0018, -122.0)
	report.Time = atSeconds(8*3600 + 2100)
	spatials := []*avl.SpatialMatch{
		spatialAt(0, 1, 200),
		spatialAt(1, 1, 200),
	}
	best := matcher.BestTemporalMatch(report, block, testServiceDate, spatials)
	is.True(best != nil)
	is.Equal(best.TripIndex, 1)

	// hours from any scheduled presence nothing is accepted
	report.Time = atSeconds(14 * 3600)
	best = matcher.BestTemporalMatch(report, block, testServiceDate, spatials)
	is.Equal(best, nil)
}

func TestScheduleDeviation_WaitStopOnTimeUntilDeparture(t *testing.T) {
	is := is.New(t)
	block := testBlock()

	layover := spatialAtStop(block, 0, 0)

	// before the scheduled departure the held vehicle reads on time
	deviation := scheduleDeviation(block, testServiceDate, layover, atSeconds(8*3600-300))
	is.Equal(deviation.Msec, int64(0))

	// after it, the deviation counts from the scheduled departure
	deviation = scheduleDeviation(block, testServiceDate, layover, atSeconds(8*3600+60+120))
	is.True(deviation.Late())
	is.Equal(deviation.Msec, int64(-120_000))
}

func TestTravelTimes_FromSchedule(t *testing.T) {
	is := is.New(t)
	block := testBlock()
	tt := newScheduleTravelTimes()

	// stop B arrives at 8:10 and stop C at 8:20
	from := spatialAtStop(block, 0, 1)
	to := spatialAtStop(block, 0, 2)
	is.Equal(tt.ExpectedTravelTimeMsec("101", testServiceDate, block, from, to), int64(600_000))

	// backwards travel never goes negative
	is.Equal(tt.ExpectedTravelTimeMsec("101", testServiceDate, block, to, from), int64(0))
}
