package processor

import (
	logger "log"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// testServiceDate is the service day every fixture runs under, kept in UTC
// so test times read the same as schedule seconds.
var testServiceDate = time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)

func atSeconds(seconds int) time.Time {
	return testServiceDate.Add(time.Duration(seconds) * time.Second)
}

// testBlock builds a block with two trips of three stops each. Trip one runs
// 8:00 to 8:20, trip two 8:30 to 8:50, with a wait stop at the start of each
// trip.
func testBlock() *gtfs.Block {
	makeTrip := func(tripId string, startSeconds int) *gtfs.Trip {
		return &gtfs.Trip{
			TripId:    tripId,
			ServiceId: "WEEKDAY",
			BlockId:   "9020",
			RouteId:   "100",
			StopPaths: []*gtfs.StopPath{
				{StopId: "A", StopPathIndex: 0, Length: 100,
					ArrivalSeconds: startSeconds, DepartureSeconds: startSeconds + 60, WaitStop: true},
				{StopId: "B", StopPathIndex: 1, Length: 400,
					ArrivalSeconds: startSeconds + 600, DepartureSeconds: startSeconds + 630},
				{StopId: "C", StopPathIndex: 2, Length: 500,
					ArrivalSeconds: startSeconds + 1200, DepartureSeconds: startSeconds + 1200, LastStopInTrip: true},
			},
		}
	}
	return &gtfs.Block{
		ServiceId: "WEEKDAY",
		BlockId:   "9020",
		Trips:     []*gtfs.Trip{makeTrip("t1", 8*60*60), makeTrip("t2", 8*60*60+1800)},
	}
}

// testStops lays the fixture stops roughly north along a meridian: A to B is
// about 400m and B to C about 500m.
func testStops() []*gtfs.Stop {
	return []*gtfs.Stop{
		{StopId: "A", Latitude: 45.0, Longitude: -122.0},
		{StopId: "B", Latitude: 45.0036, Longitude: -122.0},
		{StopId: "C", Latitude: 45.0081, Longitude: -122.0},
	}
}

func testIndex(blocks ...*gtfs.Block) *gtfs.Index {
	if len(blocks) == 0 {
		blocks = []*gtfs.Block{testBlock()}
	}
	calendar := gtfs.NewServiceCalendar([]gtfs.Calendar{
		{ServiceId: "WEEKDAY", Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
			StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}, nil, false)
	return gtfs.NewIndex(1, time.UTC, blocks, testStops(),
		[]*gtfs.Route{{RouteId: "100", ShortName: "100"}}, calendar)
}

func testLogger() *logger.Logger {
	return logger.New(os.Stdout, "TEST : ", logger.LstdFlags)
}

// spatialAt builds a spatial placement on the fixture block.
func spatialAt(tripIndex, stopPathIndex int, along float64) *avl.SpatialMatch {
	return &avl.SpatialMatch{
		Indices:               avl.Indices{TripIndex: tripIndex, StopPathIndex: stopPathIndex},
		DistanceAlongStopPath: along,
	}
}

// spatialAtStop builds a spatial placement sitting at the stop ending the
// path.
func spatialAtStop(block *gtfs.Block, tripIndex, stopPathIndex int) *avl.SpatialMatch {
	path := block.StopPath(tripIndex, stopPathIndex)
	match := spatialAt(tripIndex, stopPathIndex, path.Length)
	match.AtStop = &avl.VehicleAtStopInfo{Indices: match.Indices, StopId: path.StopId}
	match.AtLayover = path.WaitStop
	return match
}

// fakeSpatial serves canned placements.
type fakeSpatial struct {
	forBlock     []*avl.SpatialMatch
	nearPrevious []*avl.SpatialMatch
	layover      *avl.SpatialMatch
}

func (f *fakeSpatial) MatchesForBlock(_ *avl.Report, _ *gtfs.Block) []*avl.SpatialMatch {
	return f.forBlock
}

func (f *fakeSpatial) MatchesNearPrevious(_ *avl.Report, _ *gtfs.Block, _ *avl.TemporalMatch) []*avl.SpatialMatch {
	return f.nearPrevious
}

func (f *fakeSpatial) MatchToLayoverStop(_ *avl.Report, _ *gtfs.Block) *avl.SpatialMatch {
	return f.layover
}

// fakeTemporal accepts the first spatial placement unless told to reject.
type fakeTemporal struct {
	reject bool
}

func (f *fakeTemporal) BestTemporalMatch(report *avl.Report, block *gtfs.Block, serviceDate time.Time,
	spatials []*avl.SpatialMatch) *avl.TemporalMatch {

	if f.reject || len(spatials) == 0 {
		return nil
	}
	spatial := spatials[0]
	return &avl.TemporalMatch{
		SpatialMatch: *spatial,
		BlockId:      block.BlockId,
		ServiceId:    block.ServiceId,
		ServiceDate:  serviceDate,
		AvlTime:      report.Time,
		Deviation:    scheduleDeviation(block, serviceDate, spatial, report.Time),
	}
}

// fakeAssigner resolves block assignments against a single fixture block.
type fakeAssigner struct {
	block       *gtfs.Block
	serviceDate time.Time
}

func (f *fakeAssigner) BlockForAssignment(report *avl.Report) (*gtfs.Block, time.Time, bool) {
	if f.block != nil && report.AssignmentType == avl.AssignmentBlock &&
		report.AssignmentId == f.block.BlockId {
		return f.block, f.serviceDate, true
	}
	return nil, time.Time{}, false
}

func (f *fakeAssigner) RouteForAssignment(report *avl.Report) (string, bool) {
	if report.AssignmentType == avl.AssignmentRoute {
		return report.AssignmentId, true
	}
	return "", false
}

func (f *fakeAssigner) HasNewAssignment(report *avl.Report, status *VehicleStatus) bool {
	return report.HasAssignment() && report.AssignmentId != status.AssignmentId
}

// fakeAuto counts auto assignment attempts for unassigned vehicles.
type fakeAuto struct {
	calls   int
	reports []*avl.Report
}

func (f *fakeAuto) MatchForUnassigned(_ *VehicleStatus, report *avl.Report) (*avl.TemporalMatch, *gtfs.Block) {
	f.calls++
	f.reports = append(f.reports, report)
	return nil, nil
}

// recordingSink collects everything the processor emits.
type recordingSink struct {
	events    []*avl.VehicleEvent
	records   []*avl.ArrivalDeparture
	reports   []*avl.Report
	snapshots []*avl.VehicleSnapshot
}

func (s *recordingSink) VehicleEvent(event *avl.VehicleEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ArrivalDeparture(record *avl.ArrivalDeparture) error {
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) AvlReport(report *avl.Report) error {
	s.reports = append(s.reports, report)
	return nil
}

func (s *recordingSink) VehicleSnapshot(snapshot *avl.VehicleSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *recordingSink) eventTypes() []string {
	types := make([]string, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.EventType)
	}
	return types
}

func (s *recordingSink) countEvents(eventType string) int {
	count := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

// fakeCache mirrors the block grouping behavior of the real snapshot cache.
type fakeCache struct {
	snapshots map[string]*avl.VehicleSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[string]*avl.VehicleSnapshot)}
}

func (f *fakeCache) Update(snapshot *avl.VehicleSnapshot) error {
	f.snapshots[snapshot.VehicleId] = snapshot
	return nil
}

func (f *fakeCache) VehicleIdsForBlock(blockId string) []string {
	var ids []string
	for id, snapshot := range f.snapshots {
		if snapshot.Predictable && !snapshot.ScheduleBased && snapshot.BlockId == blockId {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// fixture wires a processor over fakes for the state machine tests.
type fixture struct {
	p        *Processor
	block    *gtfs.Block
	sink     *recordingSink
	cache    *fakeCache
	spatial  *fakeSpatial
	temporal *fakeTemporal
	auto     *fakeAuto
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	block := testBlock()
	index := testIndex(block)
	f := fixture{
		block:    block,
		sink:     &recordingSink{},
		cache:    newFakeCache(),
		spatial:  &fakeSpatial{},
		temporal: &fakeTemporal{},
		auto:     &fakeAuto{},
	}
	p, err := NewProcessor(testLogger(), DefaultConfig(), Deps{
		Index:     index,
		Spatial:   f.spatial,
		Temporal:  f.temporal,
		Assigner:  &fakeAssigner{block: block, serviceDate: testServiceDate},
		Auto:      f.auto,
		Sink:      f.sink,
		Snapshots: f.cache,
	})
	if err != nil {
		t.Fatalf("building processor: %v", err)
	}
	f.p = p
	return &f
}

func blockReport(vehicleId string, at time.Time) *avl.Report {
	return &avl.Report{
		VehicleId:      vehicleId,
		Time:           at,
		Latitude:       45.0,
		Longitude:      -122.0,
		AssignmentId:   "9020",
		AssignmentType: avl.AssignmentBlock,
		Source:         "test",
	}
}

// makePredictable runs one assigned report through the processor, leaving
// the vehicle predictable at the start of the block.
func (f *fixture) makePredictable(t *testing.T, vehicleId string, at time.Time) *VehicleStatus {
	t.Helper()
	f.spatial.forBlock = []*avl.SpatialMatch{spatialAt(0, 0, 50)}
	if err := f.p.ProcessReport(blockReport(vehicleId, at)); err != nil {
		t.Fatalf("processing report: %v", err)
	}
	status := f.p.Statuses().Status(vehicleId)
	if !status.Predictable {
		t.Fatalf("vehicle %s did not become predictable", vehicleId)
	}
	return status
}
