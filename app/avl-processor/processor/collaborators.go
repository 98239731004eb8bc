package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// SpatialMatcher places a fix geometrically on a block. Implementations are
// pure lookups and never mutate the block.
type SpatialMatcher interface {
	// MatchesForBlock searches the whole block for plausible placements.
	MatchesForBlock(report *avl.Report, block *gtfs.Block) []*avl.SpatialMatch
	// MatchesNearPrevious searches forward from the vehicle's previous
	// match, never producing a placement behind it.
	MatchesNearPrevious(report *avl.Report, block *gtfs.Block, previous *avl.TemporalMatch) []*avl.SpatialMatch
	// MatchToLayoverStop places an off route fix at the next upcoming wait
	// stop when the fix is within layover distance of it, or nil.
	MatchToLayoverStop(report *avl.Report, block *gtfs.Block) *avl.SpatialMatch
}

// TemporalMatcher picks the schedule-plausible best of a set of spatial
// matches, or nil when none fits in time.
type TemporalMatcher interface {
	BestTemporalMatch(report *avl.Report, block *gtfs.Block, serviceDate time.Time,
		spatials []*avl.SpatialMatch) *avl.TemporalMatch
}

// TravelTimeEstimator predicts how long a vehicle takes between two
// positions on a block, in milliseconds.
type TravelTimeEstimator interface {
	ExpectedTravelTimeMsec(vehicleId string, serviceDate time.Time, block *gtfs.Block,
		from, to *avl.SpatialMatch) int64
}

// BlockAssigner resolves the assignment a report carries into schedule data.
type BlockAssigner interface {
	// BlockForAssignment resolves a block assignment active at the report
	// time. The returned service date is the one the block runs under.
	BlockForAssignment(report *avl.Report) (*gtfs.Block, time.Time, bool)
	// RouteForAssignment resolves a route assignment to its route id.
	RouteForAssignment(report *avl.Report) (string, bool)
	// HasNewAssignment reports whether the report carries an assignment
	// different from the one the vehicle already has.
	HasNewAssignment(report *avl.Report, status *VehicleStatus) bool
}

// AutoAssigner attempts to place a vehicle that reports no assignment.
type AutoAssigner interface {
	MatchForUnassigned(status *VehicleStatus, report *avl.Report) (*avl.TemporalMatch, *gtfs.Block)
}

// EventSink receives everything the processor produces. Sink errors are
// logged by the processor and never interrupt a report.
type EventSink interface {
	VehicleEvent(event *avl.VehicleEvent) error
	ArrivalDeparture(ad *avl.ArrivalDeparture) error
	AvlReport(report *avl.Report) error
	VehicleSnapshot(snapshot *avl.VehicleSnapshot) error
}

// SnapshotCache holds the externally visible state of every vehicle. Update
// is idempotent: pushing the same snapshot twice leaves one entry.
type SnapshotCache interface {
	Update(snapshot *avl.VehicleSnapshot) error
	// VehicleIdsForBlock lists vehicles currently assigned to blockId, for
	// exclusive assignment enforcement.
	VehicleIdsForBlock(blockId string) []string
}
