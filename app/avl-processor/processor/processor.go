// Package processor implements the vehicle matching pipeline: it consumes
// raw vehicle location reports, maintains per vehicle matching state against
// the loaded schedule, and emits vehicle events, arrival and departure
// estimates and vehicle snapshots.
package processor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// Deps are the processor's collaborators. Index, Sink and Snapshots are
// required; nil matchers, estimators and assigners fall back to the schedule
// based defaults.
type Deps struct {
	Index     *gtfs.Index
	Spatial   SpatialMatcher
	Temporal  TemporalMatcher
	Travel    TravelTimeEstimator
	Assigner  BlockAssigner
	Auto      AutoAssigner
	Sink      EventSink
	Snapshots SnapshotCache
}

// Processor runs the matching pipeline. ProcessReport is safe for
// concurrent use; reports for the same vehicle are serialized on the
// vehicle's status lock, so callers must still deliver each vehicle's
// reports in timestamp order.
type Processor struct {
	log       *log.Logger
	cfg       Config
	index     *gtfs.Index
	spatial   SpatialMatcher
	temporal  TemporalMatcher
	assigner  BlockAssigner
	auto      AutoAssigner
	sink      EventSink
	snapshots SnapshotCache
	statuses  *StatusManager
	generator *arrivalDepartureGenerator

	watermarkMu sync.Mutex
	watermark   *avl.Report
}

// NewProcessor builds a Processor, filling unset Deps with schedule based
// implementations.
func NewProcessor(log *log.Logger, cfg Config, deps Deps) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("processor requires a schedule index")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("processor requires an event sink")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("processor requires a snapshot cache")
	}
	if deps.Spatial == nil {
		deps.Spatial = newScheduleSpatialMatcher(deps.Index, &cfg)
	}
	if deps.Temporal == nil {
		deps.Temporal = newScheduleTemporalMatcher(&cfg)
	}
	if deps.Travel == nil {
		deps.Travel = newScheduleTravelTimes()
	}
	if deps.Assigner == nil {
		deps.Assigner = newScheduleBlockAssigner(deps.Index, &cfg)
	}
	if deps.Auto == nil && cfg.AutoAssign {
		deps.Auto = newAutoBlockAssigner(deps.Index, &cfg, deps.Spatial, deps.Temporal, deps.Snapshots)
	}

	p := Processor{
		log:       log,
		cfg:       cfg,
		index:     deps.Index,
		spatial:   deps.Spatial,
		temporal:  deps.Temporal,
		assigner:  deps.Assigner,
		auto:      deps.Auto,
		sink:      deps.Sink,
		snapshots: deps.Snapshots,
		statuses:  NewStatusManager(),
	}
	p.generator = newArrivalDepartureGenerator(log, &p.cfg, deps.Index, deps.Travel, deps.Sink)
	return &p, nil
}

// Statuses exposes the status manager for inspection surfaces.
func (p *Processor) Statuses() *StatusManager {
	return p.statuses
}

// Watermark returns the newest regular report processed, nil before the
// first one. Schedule based reports never advance it.
func (p *Processor) Watermark() *avl.Report {
	p.watermarkMu.Lock()
	defer p.watermarkMu.Unlock()
	return p.watermark
}

func (p *Processor) advanceWatermark(report *avl.Report) {
	if report.ScheduleBased {
		return
	}
	p.watermarkMu.Lock()
	defer p.watermarkMu.Unlock()
	if p.watermark == nil || report.Time.After(p.watermark.Time) {
		p.watermark = report
	}
}

// ProcessReport runs one report through the pipeline. Only caller contract
// violations return an error; collaborator failures are logged and the
// report still completes.
func (p *Processor) ProcessReport(report *avl.Report) error {
	if err := report.Validate(); err != nil {
		return err
	}
	report.TimeProcessed = time.Now()

	status := p.statuses.Status(report.VehicleId)
	status.Lock()
	defer status.Unlock()

	p.advanceWatermark(report)
	if err := p.sink.AvlReport(report); err != nil {
		p.log.Printf("failed recording avl report for vehicle %s: %v", report.VehicleId, err)
	}

	if p.cfg.IgnoreReportAssignments {
		report.AssignmentId = ""
		report.AssignmentType = avl.AssignmentUnset
	}

	status.SetReport(report)

	if report.IgnoreBecauseInConsist() {
		return nil
	}

	// A vehicle reaching the end of its block is unassigned and the same
	// report run once more so it can pick up a following assignment. One
	// extra pass is the cap: reaching the end of a second block with a
	// single report means something is wrong.
	for attempt := 0; ; attempt++ {
		endOfBlock, err := p.matchReport(status, report)
		if err != nil {
			return err
		}
		if !endOfBlock {
			break
		}
		if attempt >= 1 {
			p.log.Printf("ERROR vehicle %s reached end of block twice while processing one report at %s",
				report.VehicleId, report.Time.Format(time.RFC3339))
			break
		}
	}

	p.pushSnapshot(status)
	return nil
}

// matchReport classifies the report and runs the matching path it calls
// for. It reports whether the vehicle just finished its block and the
// report should be run again.
func (p *Processor) matchReport(status *VehicleStatus, report *avl.Report) (bool, error) {
	if report.HasAssignment() && !p.cfg.assignmentIsUnpredictable(report.AssignmentId) &&
		!status.PreviousAssignmentProblematic(report) {
		status.BadAssignmentsInARow = 0
	}

	matchToCurrent := status.Predictable && !p.assigner.HasNewAssignment(report, status)
	matchToNew := report.HasAssignment() &&
		!p.cfg.assignmentIsUnpredictable(report.AssignmentId) &&
		(!status.Predictable || p.assigner.HasNewAssignment(report, status)) &&
		!status.PreviousAssignmentProblematic(report)

	switch {
	case matchToCurrent:
		if err := p.matchPredictableVehicle(status, report); err != nil {
			return false, err
		}
	case matchToNew:
		p.matchVehicleToAssignment(status, report)
	default:
		if err := p.handleProblemAssignment(status, report); err != nil {
			return false, err
		}
	}

	if status.Predictable && status.Match != nil {
		p.handlePossibleVehicleDelay(status, report)
	}
	if status.Predictable && status.Match != nil {
		p.generator.generate(status)
		status.NewlyAssignedToSameBlock = false
	}

	return p.handlePossibleEndOfBlock(status, report), nil
}

// matchPredictableVehicle moves an already predictable vehicle forward along
// its block.
func (p *Processor) matchPredictableVehicle(status *VehicleStatus, report *avl.Report) error {
	if !status.Predictable || status.Match == nil {
		return fmt.Errorf("matchPredictableVehicle called for unpredictable vehicle %s", status.VehicleId)
	}
	block := p.blockForStatus(status)
	if block == nil {
		p.makeUnpredictable(status, report, avl.EventNoMatch,
			fmt.Sprintf("block %s no longer in loaded schedule", status.BlockId))
		status.UnsetBlock(status.AssignmentId)
		return nil
	}

	spatials := p.spatial.MatchesNearPrevious(report, block, status.Match)
	best := p.temporal.BestTemporalMatch(report, block, status.ServiceDate, spatials)

	if best == nil {
		status.BadMatchesInARow++
		if status.BadMatchesInARow > p.cfg.MaxBadMatches {
			p.makeUnpredictable(status, report, avl.EventNoMatch,
				fmt.Sprintf("could not match %d reports in a row", status.BadMatchesInARow))
			status.UnsetBlock(status.AssignmentId)
		}
		// under the limit the previous match is retained
		return nil
	}

	if p.vehicleNotMakingProgress(status, report, block, best) {
		p.makeUnpredictable(status, report, avl.EventNoProgress,
			fmt.Sprintf("moved less than %0.0fm over %s", p.cfg.NoProgressMinDistance, p.cfg.NoProgressWindow))
		status.UnsetBlock(status.AssignmentId)
		return nil
	}

	status.BadMatchesInARow = 0
	status.SetMatch(best)
	p.verifyScheduleAdherence(status, report, block)
	return nil
}

// vehicleNotMakingProgress reports whether the vehicle has effectively not
// moved over the no-progress window. Time spent holding at a wait stop is
// legitimate and never counts as stuck.
func (p *Processor) vehicleNotMakingProgress(status *VehicleStatus, report *avl.Report,
	block *gtfs.Block, next *avl.TemporalMatch) bool {

	if next.AtLayover {
		return false
	}
	old := status.MatchBefore(report.Time, p.cfg.NoProgressWindow)
	if old == nil {
		return false
	}
	moved := block.DistanceAlong(next.TripIndex, next.StopPathIndex, next.DistanceAlongStopPath) -
		block.DistanceAlong(old.TripIndex, old.StopPathIndex, old.DistanceAlongStopPath)
	if moved >= p.cfg.NoProgressMinDistance {
		return false
	}
	if block.TraversedWaitStop(old.TripIndex, old.StopPathIndex, next.TripIndex, next.StopPathIndex) {
		return false
	}
	if old.AtLayover {
		return false
	}
	return true
}

// verifyScheduleAdherence recomputes the match's deviation at the report
// time. A vehicle sitting too long at a wait stop produces a
// NOT_LEAVING_TERMINAL event; a vehicle outside the adherence bounds loses
// its match and gets one fresh full-block attempt.
func (p *Processor) verifyScheduleAdherence(status *VehicleStatus, report *avl.Report, block *gtfs.Block) {
	deviation := scheduleDeviation(block, status.ServiceDate, &status.Match.SpatialMatch, report.Time)
	status.Match.Deviation = deviation

	if status.Match.AtLayover && deviation.LaterThan(p.cfg.AllowableLateAtWaitStop) {
		p.recordEvent(status, report, avl.EventNotLeavingTerminal,
			fmt.Sprintf("still at wait stop %s", deviation), false)
		return
	}
	if deviation.WithinBounds(p.cfg.AllowableEarly, p.cfg.AllowableLate) {
		return
	}

	p.makeUnpredictable(status, report, avl.EventNoMatch,
		fmt.Sprintf("schedule adherence %s out of bounds", deviation))
	serviceDate := status.ServiceDate
	p.matchVehicleToBlock(status, report, block, serviceDate, status.AssignmentId, status.AssignmentType)
}

// matchVehicleToAssignment handles a report carrying a new assignment.
func (p *Processor) matchVehicleToAssignment(status *VehicleStatus, report *avl.Report) {
	if block, serviceDate, ok := p.assigner.BlockForAssignment(report); ok {
		if p.grabRefused(status, report, block) {
			p.recordEvent(status, report, avl.EventAvlConflict,
				fmt.Sprintf("refusing to take block %s already held by another vehicle", block.BlockId), false)
			status.ProblemAssignmentId = report.AssignmentId
			return
		}
		p.matchVehicleToBlock(status, report, block, serviceDate, report.AssignmentId, report.AssignmentType)
		return
	}
	if routeId, ok := p.assigner.RouteForAssignment(report); ok {
		p.matchVehicleToRoute(status, report, routeId)
		return
	}
	// assignment does not resolve against the loaded schedule
	status.ProblemAssignmentId = report.AssignmentId
	status.BadAssignmentsInARow++
}

// grabRefused blocks a vehicle far from a block's geometry from taking the
// block away from the vehicle already running it.
func (p *Processor) grabRefused(status *VehicleStatus, report *avl.Report, block *gtfs.Block) bool {
	others := p.otherVehiclesOnBlock(block.BlockId, status.VehicleId)
	if len(others) == 0 {
		return false
	}
	spatials := p.spatial.MatchesForBlock(report, block)
	nearest := -1.0
	for _, s := range spatials {
		if nearest < 0 || s.DistanceToSegment < nearest {
			nearest = s.DistanceToSegment
		}
	}
	return nearest < 0 || nearest > p.cfg.MaxDistanceForAssignmentGrab
}

func (p *Processor) otherVehiclesOnBlock(blockId, vehicleId string) []string {
	var others []string
	for _, id := range p.snapshots.VehicleIdsForBlock(blockId) {
		if id != vehicleId {
			others = append(others, id)
		}
	}
	return others
}

// matchVehicleToBlock attempts a full block match and accepts the vehicle
// onto the block when one is found.
func (p *Processor) matchVehicleToBlock(status *VehicleStatus, report *avl.Report, block *gtfs.Block,
	serviceDate time.Time, assignmentId string, assignmentType avl.AssignmentType) {

	spatials := p.spatial.MatchesForBlock(report, block)
	best := p.temporal.BestTemporalMatch(report, block, serviceDate, spatials)
	if best == nil {
		// a vehicle deadheading to its first trip sits off route near a
		// layover stop, match it there
		if layover := p.spatial.MatchToLayoverStop(report, block); layover != nil {
			deviation := scheduleDeviation(block, serviceDate, layover, report.Time)
			best = &avl.TemporalMatch{
				SpatialMatch: *layover,
				BlockId:      block.BlockId,
				ServiceId:    block.ServiceId,
				ServiceDate:  serviceDate,
				AvlTime:      report.Time,
				Deviation:    deviation,
			}
		}
	}
	if best == nil {
		status.ProblemAssignmentId = assignmentId
		status.BadAssignmentsInARow++
		if status.Predictable {
			p.makeUnpredictable(status, report, avl.EventNoMatch,
				fmt.Sprintf("could not match to assigned block %s", block.BlockId))
		}
		return
	}
	p.acceptMatch(status, report, block, best, assignmentId, assignmentType)
}

// matchVehicleToRoute attempts to place the vehicle on one of the blocks
// serving the assigned route. Layover matches are rejected since several
// blocks share terminals.
func (p *Processor) matchVehicleToRoute(status *VehicleStatus, report *avl.Report, routeId string) {
	var bestMatch *avl.TemporalMatch
	var bestBlock *gtfs.Block
	for _, serviceDate := range p.candidateServiceDates(report.Time) {
		for _, serviceId := range p.index.ActiveServiceIds(serviceDate) {
			for _, block := range p.index.BlocksForRoute(serviceId, routeId) {
				if !block.IsActiveAt(report.Time, serviceDate, p.cfg.BlockActiveBefore, p.cfg.BlockActiveAfter) {
					continue
				}
				if len(p.otherVehiclesOnBlock(block.BlockId, status.VehicleId)) > 0 {
					continue
				}
				spatials := p.spatial.MatchesForBlock(report, block)
				match := p.temporal.BestTemporalMatch(report, block, serviceDate, spatials)
				if match == nil || match.AtLayover {
					continue
				}
				if bestMatch == nil || match.Deviation.BetterThan(bestMatch.Deviation, p.cfg.EarlyToLateRatio) {
					bestMatch = match
					bestBlock = block
				}
			}
		}
	}
	if bestMatch == nil {
		status.ProblemAssignmentId = report.AssignmentId
		status.BadAssignmentsInARow++
		if status.Predictable {
			p.makeUnpredictable(status, report, avl.EventNoMatch,
				fmt.Sprintf("could not match to any block on route %s", routeId))
		}
		return
	}
	p.acceptMatch(status, report, bestBlock, bestMatch, report.AssignmentId, report.AssignmentType)
}

// acceptMatch installs a new block assignment and match on the vehicle,
// taking the block from any other vehicle that held it.
func (p *Processor) acceptMatch(status *VehicleStatus, report *avl.Report, block *gtfs.Block,
	match *avl.TemporalMatch, assignmentId string, assignmentType avl.AssignmentType) {

	sameBlock := status.BlockId == block.BlockId && status.ServiceId == block.ServiceId
	wasPredictable := status.Predictable

	p.unassignOtherVehicles(status, report, block)

	status.SetAssignment(assignmentId, assignmentType, block.BlockId, block.ServiceId, match.ServiceDate)
	status.ProblemAssignmentId = ""
	status.BadMatchesInARow = 0
	status.Predictable = true
	if !sameBlock {
		status.TripCounter = 0
		status.LastArrivalTime = time.Time{}
		status.PendingArrival = nil
		status.matchHistory = nil
		status.PreviousMatch = nil
	}
	status.NewlyAssignedToSameBlock = sameBlock && !wasPredictable
	status.SetMatch(match)

	if !wasPredictable {
		p.recordEvent(status, report, avl.EventPredictable,
			fmt.Sprintf("became predictable on block %s %s", block.BlockId, match.Deviation), false)
	}
}

// unassignOtherVehicles takes the block away from any vehicle still holding
// it. Schedule based vehicles never appear in the block grouping, so a real
// vehicle replaces one without a grab. The other vehicle's lock is only
// tried, never waited on, since it may itself be processing a report.
func (p *Processor) unassignOtherVehicles(status *VehicleStatus, report *avl.Report, block *gtfs.Block) {
	for _, otherId := range p.otherVehiclesOnBlock(block.BlockId, status.VehicleId) {
		other := p.statuses.Status(otherId)
		if !other.mu.TryLock() {
			p.log.Printf("vehicle %s busy, leaving block %s grab to its next report", otherId, block.BlockId)
			continue
		}
		if other.BlockId == block.BlockId {
			event := avl.VehicleEvent{
				VehicleId:           otherId,
				Time:                time.Now(),
				AvlTime:             report.Time,
				EventType:           avl.EventAssignmentGrabbed,
				Description:         fmt.Sprintf("block %s grabbed by vehicle %s", block.BlockId, status.VehicleId),
				Predictable:         false,
				BecameUnpredictable: other.Predictable,
				BlockId:             other.BlockId,
				ServiceId:           other.ServiceId,
			}
			if other.LastReport != nil {
				event.Latitude = other.LastReport.Latitude
				event.Longitude = other.LastReport.Longitude
			}
			other.UnsetBlock(other.AssignmentId)
			other.mu.Unlock()
			p.logEvent(&event)
			p.pushSnapshot(other)
		} else {
			other.mu.Unlock()
		}
	}
}

/// handleProblemAssignment covers reports whose assignment cannot be used: a
// predictable vehicle keeps its old assignment for a while, an unpredictable
// one may be auto assigned.
func (p *Processor) handleProblemAssignment(status *VehicleStatus, report *avl.Report) error {
	if !status.Predictable {
		if p.auto != nil && !report.HasAssignment() {
			if match, block := p.auto.MatchForUnassigned(status, report); match != nil {
				p.acceptMatch(status, report, block, match, block.BlockId, avl.AssignmentBlock)
			}
		}
		return nil
	}

	status.BadAssignmentsInARow++
	if status.BadAssignmentsInARow > p.cfg.MaxBadAssignments {
		p.recordEvent(status, report, avl.EventAssignmentChanged,
			fmt.Sprintf("no usable assignment for %d reports, dropping block %s",
				status.BadAssignmentsInARow, status.BlockId), true)
		problemId := report.AssignmentId
		if len(problemId) == 0 {
			problemId = status.AssignmentId
		}
		status.MakeUnpredictable()
		status.UnsetBlock(problemId)
		return nil
	}

	// keep working the old assignment until the feed sorts itself out
	synthesized := *report
	synthesized.AssignmentId = status.AssignmentId
	synthesized.AssignmentType = avl.AssignmentPrevious
	return p.matchPredictableVehicle(status, &synthesized)
}

// handlePossibleVehicleDelay flags a vehicle that keeps matching but barely
// moves. Only the transition into the delayed state produces an event.
func (p *Processor) handlePossibleVehicleDelay(status *VehicleStatus, report *avl.Report) {
	match := status.Match
	if match.AtLayover {
		status.Delayed = false
		return
	}
	block := p.blockForStatus(status)
	if block == nil {
		return
	}
	old := status.MatchBefore(report.Time, p.cfg.DelayWindow)
	if old == nil {
		return
	}
	moved := block.DistanceAlong(match.TripIndex, match.StopPathIndex, match.DistanceAlongStopPath) -
		block.DistanceAlong(old.TripIndex, old.StopPathIndex, old.DistanceAlongStopPath)
	wasDelayed := status.Delayed
	status.Delayed = moved < p.cfg.DelayMaxDistance &&
		!block.TraversedWaitStop(old.TripIndex, old.StopPathIndex, match.TripIndex, match.StopPathIndex)
	if status.Delayed && !wasDelayed {
		p.recordEvent(status, report, avl.EventDelayed,
			fmt.Sprintf("moved only %0.0fm over %s", moved, p.cfg.DelayWindow), false)
	}
}

// handlePossibleEndOfBlock finishes a vehicle that has arrived at the last
// stop of its block. It reports true so the caller reruns the report, giving
// the vehicle a chance to pick up its next assignment.
func (p *Processor) handlePossibleEndOfBlock(status *VehicleStatus, report *avl.Report) bool {
	if !status.Predictable || status.Match == nil {
		return false
	}
	block := p.blockForStatus(status)
	if block == nil {
		return false
	}
	lastTrip := block.TripAt(block.LastTripIndex())
	if lastTrip == nil {
		return false
	}
	match := status.Match
	atEnd := match.TripIndex == block.LastTripIndex() &&
		match.StopPathIndex == lastTrip.LastStopPathIndex() &&
		match.AtStopWithIndices(match.Indices)
	if !atEnd {
		return false
	}

	p.recordEvent(status, report, avl.EventEndOfBlock,
		fmt.Sprintf("finished block %s", status.BlockId), true)
	status.MakeUnpredictable()
	status.BlockId = ""
	status.ServiceId = ""
	status.AssignmentId = ""
	status.AssignmentType = avl.AssignmentUnset
	status.TripCounter = 0
	return true
}

func (p *Processor) blockForStatus(status *VehicleStatus) *gtfs.Block {
	if len(status.BlockId) == 0 {
		return nil
	}
	block, ok := p.index.Block(status.ServiceId, status.BlockId)
	if !ok {
		return nil
	}
	return block
}

func (p *Processor) candidateServiceDates(at time.Time) []time.Time {
	local := at
	if p.index.Location != nil {
		local = at.In(p.index.Location)
	}
	today := gtfs.Get12AmTime(local)
	return []time.Time{today.AddDate(0, 0, -1), today}
}

// makeUnpredictable records the transition event and clears the vehicle's
// match. The caller decides whether the assignment is dropped too.
func (p *Processor) makeUnpredictable(status *VehicleStatus, report *avl.Report,
	eventType, description string) {

	p.recordEvent(status, report, eventType, description, status.Predictable)
	status.MakeUnpredictable()
}

// recordEvent builds an event from the vehicle's current context, logs it
// and hands it to the sink.
func (p *Processor) recordEvent(status *VehicleStatus, report *avl.Report,
	eventType, description string, becameUnpredictable bool) {

	event := avl.VehicleEvent{
		VehicleId:           status.VehicleId,
		Time:                time.Now(),
		AvlTime:             report.Time,
		EventType:           eventType,
		Description:         description,
		Predictable:         status.Predictable,
		BecameUnpredictable: becameUnpredictable,
		Latitude:            report.Latitude,
		Longitude:           report.Longitude,
		BlockId:             status.BlockId,
		ServiceId:           status.ServiceId,
	}
	if block := p.blockForStatus(status); block != nil && status.Match != nil {
		if trip := block.TripAt(status.Match.TripIndex); trip != nil {
			event.TripId = trip.TripId
			event.RouteId = trip.RouteId
		}
		if path := block.StopPath(status.Match.TripIndex, status.Match.StopPathIndex); path != nil {
			event.StopId = path.StopId
		}
	}
	p.logEvent(&event)
}

func (p *Processor) logEvent(event *avl.VehicleEvent) {
	p.log.Printf("%s", event)
	if err := p.sink.VehicleEvent(event); err != nil {
		p.log.Printf("failed recording %s event for vehicle %s: %v", event.EventType, event.VehicleId, err)
	}
}

// pushSnapshot publishes the vehicle's externally visible state. Called
// exactly once per processed report and after an assignment grab.
func (p *Processor) pushSnapshot(status *VehicleStatus) {
	snapshot := p.snapshotForStatus(status)
	if snapshot == nil {
		return
	}
	if err := p.snapshots.Update(snapshot); err != nil {
		p.log.Printf("failed updating snapshot cache for vehicle %s: %v", status.VehicleId, err)
	}
	if err := p.sink.VehicleSnapshot(snapshot); err != nil {
		p.log.Printf("failed recording snapshot for vehicle %s: %v", status.VehicleId, err)
	}
}

func (p *Processor) snapshotForStatus(status *VehicleStatus) *avl.VehicleSnapshot {
	report := status.LastReport
	if report == nil {
		return nil
	}
	snapshot := avl.VehicleSnapshot{
		VehicleId:     status.VehicleId,
		AvlTime:       report.Time,
		Latitude:      report.Latitude,
		Longitude:     report.Longitude,
		Predictable:   status.Predictable,
		ScheduleBased: report.ScheduleBased,
		BlockId:       status.BlockId,
		ServiceId:     status.ServiceId,
		AssignmentId:  status.AssignmentId,
	}
	if status.Predictable && status.Match != nil {
		snapshot.TripIndex = status.Match.TripIndex
		snapshot.StopPathIndex = status.Match.StopPathIndex
		deviation := status.Match.Deviation.Msec
		snapshot.ScheduleDeviationMsec = &deviation
		if block := p.blockForStatus(status); block != nil {
			if trip := block.TripAt(status.Match.TripIndex); trip != nil {
				snapshot.TripId = trip.TripId
				snapshot.RouteId = trip.RouteId
			}
			if path := block.StopPath(status.Match.TripIndex, status.Match.StopPathIndex); path != nil {
				snapshot.NextStopId = path.StopId
			}
		}
	}
	return &snapshot
}
