package processor

import (
	"testing"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
	"github.com/matryer/is"
)

// generatorFixture wires an arrivalDepartureGenerator over the test block
// with schedule based travel times.
type generatorFixture struct {
	g     *arrivalDepartureGenerator
	block *gtfs.Block
	sink  *recordingSink
	cfg   Config
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	block := testBlock()
	sink := &recordingSink{}
	cfg := DefaultConfig()
	f := generatorFixture{
		g:     newArrivalDepartureGenerator(testLogger(), &cfg, testIndex(block), newScheduleTravelTimes(), sink),
		block: block,
		sink:  sink,
		cfg:   cfg,
	}
	return &f
}

// statusWithMatches builds a predictable status moving from old to new
// between the two report times.
func (f *generatorFixture) statusWithMatches(old, new *avl.SpatialMatch, prevAt, at time.Time) *VehicleStatus {
	status := &VehicleStatus{
		VehicleId:   "101",
		Predictable: true,
		BlockId:     f.block.BlockId,
		ServiceId:   f.block.ServiceId,
		ServiceDate: testServiceDate,
	}
	if old != nil {
		status.PreviousMatch = &avl.TemporalMatch{
			SpatialMatch: *old,
			BlockId:      f.block.BlockId,
			ServiceId:    f.block.ServiceId,
			ServiceDate:  testServiceDate,
			AvlTime:      prevAt,
		}
		status.PreviousReport = &avl.Report{VehicleId: "101", Time: prevAt, Latitude: 45, Longitude: -122}
	}
	status.Match = &avl.TemporalMatch{
		SpatialMatch: *new,
		BlockId:      f.block.BlockId,
		ServiceId:    f.block.ServiceId,
		ServiceDate:  testServiceDate,
		AvlTime:      at,
	}
	status.LastReport = &avl.Report{VehicleId: "101", Time: at, Latitude: 45, Longitude: -122}
	return status
}

func recordKinds(records []*avl.ArrivalDeparture) []string {
	kinds := make([]string, 0, len(records))
	for _, r := range records {
		kinds = append(kinds, r.Kind+" "+r.StopId)
	}
	return kinds
}

func TestGenerator_DepartureAndArrivalBetweenAdjacentStops(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// the vehicle was at stop B at 8:10:30 and is at stop C at 8:20:00
	prevAt := atSeconds(8*3600 + 630)
	at := atSeconds(8*3600 + 1200)
	status := f.statusWithMatches(spatialAtStop(f.block, 0, 1), spatialAtStop(f.block, 0, 2), prevAt, at)

	f.g.generate(status)

	is.Equal(recordKinds(f.sink.records), []string{"DEPARTURE B", "ARRIVAL C"})

	departure := f.sink.records[0]
	arrival := f.sink.records[1]
	// departure is clamped strictly after the previous report
	is.True(departure.Time.Equal(prevAt.Add(time.Millisecond)))
	is.True(arrival.Time.Equal(at))
	is.True(departure.Time.Before(arrival.Time))
	is.Equal(arrival.ScheduledSeconds, 8*3600+1200)
	is.Equal(departure.ScheduledSeconds, 8*3600+630)
	is.Equal(arrival.TripId, "t1")

	// the arrival to the last stop of the trip finishes it
	is.Equal(status.TripCounter, 1)
	is.True(status.LastArrivalTime.Equal(at))
}

func TestGenerator_LongGapKeepsArrivalAfterDeparture(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// twenty five minutes pass between a report at stop A and the next at
	// stop B, so the departure backs off far from the first report; the
	// arrival must extrapolate forward from that departure, not from the
	// stale report, or it would land before the departure
	prevAt := atSeconds(8*3600 + 60)
	at := atSeconds(8*3600 + 1560)
	status := f.statusWithMatches(spatialAtStop(f.block, 0, 0), spatialAtStop(f.block, 0, 1), prevAt, at)

	f.g.generate(status)

	is.Equal(recordKinds(f.sink.records), []string{"DEPARTURE A", "ARRIVAL B"})
	departure := f.sink.records[0]
	arrival := f.sink.records[1]
	// scheduled travel A to B is 540s, so the backward estimate puts the
	// departure at 8:17, and the arrival settles on the report itself
	is.True(departure.Time.Equal(atSeconds(8*3600 + 1020)))
	is.True(arrival.Time.Equal(at))
	is.True(arrival.Time.After(departure.Time))
}

func TestGenerator_IntermediateStopsScaledBySchedule(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// the vehicle covers A to C, passing B, in ten minutes
	prevAt := atSeconds(8*3600 + 60)
	at := atSeconds(8*3600 + 660)
	status := f.statusWithMatches(spatialAtStop(f.block, 0, 0), spatialAtStop(f.block, 0, 2), prevAt, at)

	f.g.generate(status)

	is.Equal(recordKinds(f.sink.records), []string{"DEPARTURE A", "ARRIVAL B", "DEPARTURE B", "ARRIVAL C"})

	// every estimate lands inside the report window, strictly ordered
	last := prevAt
	for _, record := range f.sink.records {
		is.True(record.Time.After(last))
		is.True(!record.Time.After(at))
		last = record.Time
	}
}

func TestGenerator_LateArrivalHeldBackThenReconciled(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// approaching stop B, the extrapolated arrival lands 27s after the
	// report itself, so it is held back
	prevAt := atSeconds(8*3600 + 180)
	at := atSeconds(8*3600 + 540)
	status := f.statusWithMatches(spatialAt(0, 1, 100), spatialAtStop(f.block, 0, 1), prevAt, at)
	status.Match.DistanceAlongStopPath = 380
	status.Match.AtStop.StopId = "B"

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
	is.True(status.PendingArrival != nil)
	is.Equal(status.PendingArrival.StopId, "B")
	pendingAt := status.PendingArrival.Time
	is.True(pendingAt.Equal(at.Add(27 * time.Second)))

	// the next report shows the vehicle past B, so the held arrival and
	// the departure are settled together in order
	nextAt := atSeconds(8*3600 + 600)
	status.PreviousMatch = status.Match
	status.PreviousReport = status.LastReport
	status.Match = &avl.TemporalMatch{
		SpatialMatch: *spatialAt(0, 2, 100),
		BlockId:      f.block.BlockId,
		ServiceId:    f.block.ServiceId,
		ServiceDate:  testServiceDate,
		AvlTime:      nextAt,
	}
	status.LastReport = &avl.Report{VehicleId: "101", Time: nextAt, Latitude: 45, Longitude: -122}

	f.g.generate(status)

	is.Equal(recordKinds(f.sink.records), []string{"ARRIVAL B", "DEPARTURE B"})
	arrival := f.sink.records[0]
	departure := f.sink.records[1]
	is.True(status.PendingArrival == nil)
	is.True(arrival.Time.Before(departure.Time))
	is.True(arrival.Time.After(status.PreviousReport.Time))
	is.True(departure.Time.Before(nextAt))
	// the contradiction is squeezed into the report window with a one
	// millisecond gap
	is.Equal(departure.Time.Sub(arrival.Time), time.Millisecond)
}

func TestGenerator_TooManyStopsTraversedSkipsEstimates(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// five stops in thirty seconds is not believable
	prevAt := atSeconds(8*3600 + 60)
	at := atSeconds(8*3600 + 90)
	status := f.statusWithMatches(spatialAt(0, 0, 50), spatialAtStop(f.block, 1, 2), prevAt, at)

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_OffRouteLayoverPreviousMatchProducesNothing(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// the previous match only stuck to a layover from far off route, so it
	// is too loose a position to estimate from
	prevAt := atSeconds(8*3600 + 630)
	at := atSeconds(8*3600 + 1200)
	old := spatialAtStop(f.block, 0, 1)
	old.AtLayover = true
	old.DistanceToSegment = f.cfg.LayoverDistance + 1000
	status := f.statusWithMatches(old, spatialAtStop(f.block, 0, 2), prevAt, at)

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_BackwardsMatchProducesNothing(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	prevAt := atSeconds(8*3600 + 600)
	at := atSeconds(8*3600 + 630)
	status := f.statusWithMatches(spatialAt(0, 2, 100), spatialAt(0, 1, 300), prevAt, at)

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_EstimatesStartOfFirstTrip(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// first ever match places the vehicle at stop C, two stops into trip
	// one, at its scheduled arrival time
	at := atSeconds(8*3600 + 1200)
	status := f.statusWithMatches(nil, spatialAtStop(f.block, 0, 2), time.Time{}, at)

	f.g.generate(status)

	is.Equal(recordKinds(f.sink.records), []string{"DEPARTURE A", "ARRIVAL B", "DEPARTURE B", "ARRIVAL C"})
	// walking the schedule backwards from the match puts the departure
	// from A at its scheduled time
	is.True(f.sink.records[0].Time.Equal(atSeconds(8 * 3600)))
	is.True(f.sink.records[3].Time.Equal(at))
}

func TestGenerator_LeftTerminalLateEvent(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// the same reconstruction six minutes behind schedule
	at := atSeconds(8*3600 + 1200 + 360)
	status := f.statusWithMatches(nil, spatialAtStop(f.block, 0, 2), time.Time{}, at)

	f.g.generate(status)

	is.Equal(f.sink.countEvents(avl.EventLeftTerminalLate), 1)
	event := f.sink.events[0]
	is.Equal(event.StopId, "A")
	is.Equal(event.TripId, "t1")
}

func TestGenerator_NoInferenceForRegainedBlock(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	at := atSeconds(8*3600 + 1200)
	status := f.statusWithMatches(nil, spatialAtStop(f.block, 0, 2), time.Time{}, at)
	status.NewlyAssignedToSameBlock = true

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_NoInferenceTooFarIntoBlock(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	// a first match on the second trip never reconstructs the first
	at := atSeconds(8*3600 + 1800 + 600)
	status := f.statusWithMatches(nil, spatialAtStop(f.block, 1, 1), time.Time{}, at)

	f.g.generate(status)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_EstimateTooFarFromReportDiscarded(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	record := &avl.ArrivalDeparture{
		Kind:      avl.Arrival,
		VehicleId: "101",
		Time:      atSeconds(8 * 3600),
		AvlTime:   atSeconds(9 * 3600),
		BlockId:   f.block.BlockId,
		ServiceId: f.block.ServiceId,
		StopId:    "B",
	}
	status := &VehicleStatus{VehicleId: "101"}
	kept := f.g.store(status, f.block, record)
	is.Equal(kept, false)
	is.Equal(len(f.sink.records), 0)
}

func TestGenerator_DeparturesStayAfterLastArrival(t *testing.T) {
	is := is.New(t)
	f := newGeneratorFixture(t)

	prevAt := atSeconds(8*3600 + 630)
	at := atSeconds(8*3600 + 1200)
	status := f.statusWithMatches(spatialAtStop(f.block, 0, 1), spatialAtStop(f.block, 0, 2), prevAt, at)
	// an arrival was already written just after the previous report
	lastArrival := prevAt.Add(10 * time.Second)
	status.LastArrivalTime = lastArrival

	f.g.generate(status)

	departure := f.sink.records[0]
	is.Equal(departure.Kind, avl.Departure)
	is.True(departure.Time.Equal(lastArrival.Add(time.Millisecond)))
}
