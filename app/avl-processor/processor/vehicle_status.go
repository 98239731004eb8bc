package processor

import (
	"sync"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
)

// matchHistorySize bounds how many past matches a vehicle retains for the
// no-progress and delay checks.
const matchHistorySize = 24

// VehicleStatus is everything the processor remembers about one vehicle.
// A status is only touched while its mutex is held, so one vehicle's reports
// are always processed serially.
type VehicleStatus struct {
	mu sync.Mutex

	VehicleId string

	// LastReport is the most recent report processed for the vehicle and
	// PreviousReport the one before it
	LastReport     *avl.Report
	PreviousReport *avl.Report

	// Match is the current temporal match, nil when the vehicle has none.
	// PreviousMatch is the match from the prior report.
	Match         *avl.TemporalMatch
	PreviousMatch *avl.TemporalMatch

	// matchHistory holds recent matches newest first
	matchHistory []*avl.TemporalMatch

	Predictable bool

	// AssignmentId and AssignmentType are the assignment currently in force
	AssignmentId   string
	AssignmentType avl.AssignmentType
	BlockId        string
	ServiceId      string
	ServiceDate    time.Time

	BadMatchesInARow     int
	BadAssignmentsInARow int

	// ProblemAssignmentId is the last assignment id that could not be used,
	// so the same broken assignment is not retried every report
	ProblemAssignmentId string

	Delayed bool

	// TripCounter increments every time the vehicle finishes a trip on its
	// current block
	TripCounter int

	// LastArrivalTime is the time of the newest arrival written for the
	// vehicle, used to keep departures after arrivals. Zero when none.
	LastArrivalTime time.Time

	// PendingArrival is an arrival estimated to happen after the report that
	// produced it. It is held back until the next report confirms or adjusts
	// it.
	PendingArrival *avl.ArrivalDeparture

	// NewlyAssignedToSameBlock is true when the vehicle just regained the
	// block it already had, so past stops must not be re-estimated
	NewlyAssignedToSameBlock bool
}

// Lock takes the vehicle's processing lock.
func (vs *VehicleStatus) Lock() { vs.mu.Lock() }

// Unlock releases the vehicle's processing lock.
func (vs *VehicleStatus) Unlock() { vs.mu.Unlock() }

// SetReport records a new report, rolling the previous one back.
func (vs *VehicleStatus) SetReport(report *avl.Report) {
	vs.PreviousReport = vs.LastReport
	vs.LastReport = report
}

// SetMatch records a new match and pushes the old one into history.
func (vs *VehicleStatus) SetMatch(match *avl.TemporalMatch) {
	vs.PreviousMatch = vs.Match
	vs.Match = match
	if match != nil {
		vs.matchHistory = append([]*avl.TemporalMatch{match}, vs.matchHistory...)
		if len(vs.matchHistory) > matchHistorySize {
			vs.matchHistory = vs.matchHistory[:matchHistorySize]
		}
	}
}

// MatchBefore finds the newest historical match at least age older than at,
// or nil when history does not reach back that far.
func (vs *VehicleStatus) MatchBefore(at time.Time, age time.Duration) *avl.TemporalMatch {
	cutoff := at.Add(-age)
	for _, m := range vs.matchHistory {
		if !m.AvlTime.After(cutoff) {
			return m
		}
	}
	return nil
}

// SetAssignment records a confirmed assignment on the vehicle.
func (vs *VehicleStatus) SetAssignment(assignmentId string, assignmentType avl.AssignmentType,
	blockId, serviceId string, serviceDate time.Time) {

	vs.AssignmentId = assignmentId
	vs.AssignmentType = assignmentType
	vs.BlockId = blockId
	vs.ServiceId = serviceId
	vs.ServiceDate = serviceDate
}

// MakeUnpredictable clears the vehicle's match and predictability, keeping
// report history so the next report still has context.
func (vs *VehicleStatus) MakeUnpredictable() {
	vs.Predictable = false
	vs.SetMatch(nil)
	vs.Delayed = false
	vs.PendingArrival = nil
	vs.LastArrivalTime = time.Time{}
}

// UnsetBlock drops the block assignment along with predictability and
// remembers the assignment as problematic so it is not immediately retried.
func (vs *VehicleStatus) UnsetBlock(problemAssignmentId string) {
	vs.MakeUnpredictable()
	vs.BlockId = ""
	vs.ServiceId = ""
	vs.AssignmentId = ""
	vs.AssignmentType = avl.AssignmentUnset
	vs.ProblemAssignmentId = problemAssignmentId
	vs.TripCounter = 0
}

// PreviousAssignmentProblematic reports whether the report carries the same
// assignment that already failed for this vehicle.
func (vs *VehicleStatus) PreviousAssignmentProblematic(report *avl.Report) bool {
	return len(vs.ProblemAssignmentId) > 0 && report.AssignmentId == vs.ProblemAssignmentId
}

// StatusManager hands out the singleton VehicleStatus per vehicle id.
type StatusManager struct {
	mu       sync.Mutex
	vehicles map[string]*VehicleStatus
}

// NewStatusManager builds an empty manager.
func NewStatusManager() *StatusManager {
	return &StatusManager{
		vehicles: make(map[string]*VehicleStatus),
	}
}

// Status returns the vehicle's status, creating it on first sight.
func (m *StatusManager) Status(vehicleId string) *VehicleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.vehicles[vehicleId]
	if !ok {
		status = &VehicleStatus{VehicleId: vehicleId}
		m.vehicles[vehicleId] = status
	}
	return status
}

// VehicleIds lists every vehicle seen so far.
func (m *StatusManager) VehicleIds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.vehicles))
	for id := range m.vehicles {
		ids = append(ids, id)
	}
	return ids
}
