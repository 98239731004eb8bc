package processor

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

const (
	// minStopsForTraversalGuard and secondsPerTraversedStop reject report
	// pairs implying an implausible number of stops covered: at least this
	// many stops and faster than one stop per this many seconds
	minStopsForTraversalGuard = 4
	secondsPerTraversedStop   = 15

	// minExpectedTravelMsec below which the speed ratio is meaningless and
	// forced to 1.0
	minExpectedTravelMsec = 5
)

// arrivalDepartureGenerator turns the change between a vehicle's previous
// and current match into arrival and departure records for the stops the
// vehicle passed.
type arrivalDepartureGenerator struct {
	log    *log.Logger
	cfg    *Config
	index  *gtfs.Index
	travel TravelTimeEstimator
	sink   EventSink
}

func newArrivalDepartureGenerator(log *log.Logger, cfg *Config, index *gtfs.Index,
	travel TravelTimeEstimator, sink EventSink) *arrivalDepartureGenerator {

	return &arrivalDepartureGenerator{
		log:    log,
		cfg:    cfg,
		index:  index,
		travel: travel,
		sink:   sink,
	}
}

// generate estimates stop events implied by the vehicle's newest match. The
// vehicle's status lock is held by the caller.
func (g *arrivalDepartureGenerator) generate(status *VehicleStatus) {
	if !status.Predictable || status.Match == nil {
		g.log.Printf("ERROR arrival departure generation called for unpredictable vehicle %s", status.VehicleId)
		return
	}
	block, ok := g.index.Block(status.ServiceId, status.BlockId)
	if !ok {
		g.log.Printf("ERROR vehicle %s matched to block %s missing from schedule", status.VehicleId, status.BlockId)
		return
	}
	newMatch := status.Match
	report := status.LastReport
	if report == nil {
		return
	}

	// an off route layover match is too loose a position to estimate from
	if newMatch.AtLayover && newMatch.DistanceToSegment > g.cfg.LayoverDistance {
		return
	}

	oldMatch := status.PreviousMatch
	prevReport := status.PreviousReport
	if oldMatch == nil || prevReport == nil || !newMatch.SameBlock(oldMatch) {
		g.estimateWithoutPreviousMatch(status, block)
		return
	}
	if oldMatch.AtLayover && oldMatch.DistanceToSegment > g.cfg.LayoverDistance {
		return
	}

	if newMatch.Indices.Before(oldMatch.Indices, block.NoSchedule) {
		return
	}

	stopsTraversed := g.countStopsBetween(block, oldMatch, newMatch)
	elapsed := report.Time.Sub(prevReport.Time)
	if stopsTraversed >= minStopsForTraversalGuard &&
		float64(stopsTraversed) > elapsed.Seconds()/secondsPerTraversedStop {
		g.log.Printf("vehicle %s implausibly traversed %d stops in %s, skipping estimates",
			status.VehicleId, stopsTraversed, elapsed)
		return
	}

	prevAvlMs := prevReport.Time.UnixMilli()
	avlMs := report.Time.UnixMilli()
	beginMs := prevAvlMs
	endMs := avlMs

	var departedStop *avl.VehicleAtStopInfo
	if oldMatch.AtStop != nil && g.stopLeftBehind(block, oldMatch.AtStop, newMatch) {
		departedStop = oldMatch.AtStop
	}

	var arrivedStop *avl.VehicleAtStopInfo
	if newMatch.AtStop != nil {
		if oldMatch.AtStop == nil || !newMatch.AtStop.Indices.Same(oldMatch.AtStop.Indices) {
			arrivedStop = newMatch.AtStop
		}
	}

	// the departure from the stop left behind anchors everything after it:
	// the arrival extrapolates forward from the departure, not from the
	// previous report, so a long report gap cannot put the arrival first
	arrivalFrom := &oldMatch.SpatialMatch
	arrivalFromMs := prevAvlMs
	if departedStop != nil {
		departureMs := g.departureTime(status, block, oldMatch, newMatch, departedStop, prevAvlMs, avlMs)
		departureMs = g.reconcileWithPendingArrival(status, block, departureMs, prevAvlMs, avlMs)
		g.writeDeparture(status, block, departedStop.Indices, departureMs, report.Time)
		beginMs = departureMs + 1
		arrivalFrom = stopPoint(block, departedStop.Indices)
		arrivalFromMs = departureMs
	}

	var arrivalMs int64
	if arrivedStop != nil {
		arrivalMs = g.arrivalTime(status, block, arrivalFrom, arrivalFromMs, newMatch, arrivedStop, avlMs)
		if arrivalMs < endMs {
			endMs = arrivalMs
		}
	}

	g.handleIntermediateStops(status, block, oldMatch, newMatch, departedStop, arrivedStop, beginMs, endMs, report.Time)

	if arrivedStop != nil {
		g.finishArrival(status, block, newMatch, arrivedStop, arrivalMs, avlMs, report.Time)
	}
}

// stopLeftBehind reports whether the new match has moved past the stop the
// old match was at.
func (g *arrivalDepartureGenerator) stopLeftBehind(block *gtfs.Block, stop *avl.VehicleAtStopInfo,
	newMatch *avl.TemporalMatch) bool {

	if newMatch.AtStop != nil && newMatch.AtStop.Indices.Same(stop.Indices) {
		return false
	}
	return stop.Indices.Before(newMatch.Indices, block.NoSchedule) ||
		(stop.Indices.Same(newMatch.Indices) && newMatch.DistanceAlongStopPath > 0)
}

// stopPoint is the exact position of the stop ending the given path.
func stopPoint(block *gtfs.Block, ind avl.Indices) *avl.SpatialMatch {
	length := 0.0
	if path := block.StopPath(ind.TripIndex, ind.StopPathIndex); path != nil {
		length = path.Length
	}
	return &avl.SpatialMatch{Indices: ind, DistanceAlongStopPath: length}
}

// nextIndices advances one stop path, crossing trip boundaries. ok is false
// past the end of the block.
func nextIndices(block *gtfs.Block, ind avl.Indices) (avl.Indices, bool) {
	trip := block.TripAt(ind.TripIndex)
	if trip == nil {
		return ind, false
	}
	if ind.StopPathIndex+1 < len(trip.StopPaths) {
		return avl.Indices{TripIndex: ind.TripIndex, StopPathIndex: ind.StopPathIndex + 1}, true
	}
	if next := block.TripAt(ind.TripIndex + 1); next != nil && len(next.StopPaths) > 0 {
		return avl.Indices{TripIndex: ind.TripIndex + 1, StopPathIndex: 0}, true
	}
	return ind, false
}

func (g *arrivalDepartureGenerator) countStopsBetween(block *gtfs.Block,
	oldMatch, newMatch *avl.TemporalMatch) int {

	count := 0
	ind := oldMatch.Indices
	for ind.Before(newMatch.Indices, block.NoSchedule) {
		count++
		var ok bool
		ind, ok = nextIndices(block, ind)
		if !ok {
			break
		}
	}
	return count
}

// departureTime extrapolates when the vehicle left the stop: forward from
// the previous report and backward from the current one, whichever is later,
// kept strictly before the current report time.
func (g *arrivalDepartureGenerator) departureTime(status *VehicleStatus, block *gtfs.Block,
	oldMatch, newMatch *avl.TemporalMatch, stop *avl.VehicleAtStopInfo, prevAvlMs, avlMs int64) int64 {

	point := stopPoint(block, stop.Indices)
	basedOnOld := prevAvlMs + g.travelMsec(status, block, &oldMatch.SpatialMatch, point)

	justAfter, ok := nextIndices(block, stop.Indices)
	basedOnNew := avlMs
	if ok {
		start := &avl.SpatialMatch{Indices: justAfter}
		basedOnNew = avlMs - g.travelMsec(status, block, start, &newMatch.SpatialMatch)
	}

	departure := basedOnOld
	if basedOnNew > departure {
		departure = basedOnNew
	}
	if departure >= avlMs {
		departure = avlMs - 1
	}
	if departure <= prevAvlMs {
		departure = prevAvlMs + 1
	}
	return departure
}

// reconcileWithPendingArrival orders the departure after the arrival held
// back from the previous report. When they contradict, both are squeezed
// proportionally into the window between the two reports.
func (g *arrivalDepartureGenerator) reconcileWithPendingArrival(status *VehicleStatus, block *gtfs.Block,
	departureMs, prevAvlMs, avlMs int64) int64 {

	pending := status.PendingArrival
	if pending == nil {
		if !status.LastArrivalTime.IsZero() && departureMs <= status.LastArrivalTime.UnixMilli() {
			departureMs = status.LastArrivalTime.UnixMilli() + 1
		}
		return departureMs
	}
	status.PendingArrival = nil
	arrivalMs := pending.Time.UnixMilli()
	if arrivalMs < departureMs {
		g.store(status, block, pending)
		return departureMs
	}

	windowMs := avlMs - prevAvlMs
	toArrival := arrivalMs - prevAvlMs
	fromDeparture := avlMs - departureMs
	denominator := toArrival + fromDeparture
	if denominator <= 0 {
		denominator = 1
	}
	ratio := float64(windowMs) / float64(denominator)
	newArrivalMs := prevAvlMs + int64(math.Round(ratio*float64(toArrival)))
	pending.Time = time.UnixMilli(newArrivalMs)
	g.store(status, block, pending)
	return newArrivalMs + 1
}

// arrivalTime extrapolates when the vehicle reached the stop: forward from
// the position already settled behind it (the departed stop at its departure
// time, or the previous report) and backward or forward from the current
// report, whichever is earlier, kept strictly after the settled position.
func (g *arrivalDepartureGenerator) arrivalTime(status *VehicleStatus, block *gtfs.Block,
	from *avl.SpatialMatch, fromMs int64, newMatch *avl.TemporalMatch, stop *avl.VehicleAtStopInfo,
	avlMs int64) int64 {

	point := stopPoint(block, stop.Indices)
	basedOnOld := fromMs + g.travelMsec(status, block, from, point)

	var basedOnNew int64
	if newMatch.Indices.Before(stop.Indices, block.NoSchedule) || stop.Indices.Same(newMatch.Indices) {
		// stop point still ahead of (or level with) the exact match position
		basedOnNew = avlMs + g.travelMsec(status, block, &newMatch.SpatialMatch, point)
	} else {
		basedOnNew = avlMs - g.travelMsec(status, block, point, &newMatch.SpatialMatch)
	}

	arrival := basedOnOld
	if basedOnNew < arrival {
		arrival = basedOnNew
	}
	if arrival <= fromMs {
		arrival = fromMs + 1
	}
	return arrival
}

// finishArrival writes the arrival or, when it is estimated to happen after
// the report that produced it, holds it back for the next report to settle.
func (g *arrivalDepartureGenerator) finishArrival(status *VehicleStatus, block *gtfs.Block,
	newMatch *avl.TemporalMatch, stop *avl.VehicleAtStopInfo, arrivalMs, avlMs int64, avlTime time.Time) {

	record := g.makeRecord(status, block, avl.Arrival, stop.Indices, time.UnixMilli(arrivalMs), avlTime)
	path := block.StopPath(stop.TripIndex, stop.StopPathIndex)
	lastOfTrip := path != nil && path.LastStopInTrip
	if arrivalMs > avlMs && !lastOfTrip {
		status.PendingArrival = record
		return
	}
	g.store(status, block, record)
}

// handleIntermediateStops emits arrival and departure pairs for stops fully
// passed between the two matches, spreading the elapsed report interval over
// them in proportion to the schedule's expectations.
func (g *arrivalDepartureGenerator) handleIntermediateStops(status *VehicleStatus, block *gtfs.Block,
	oldMatch, newMatch *avl.TemporalMatch, departedStop, arrivedStop *avl.VehicleAtStopInfo,
	beginMs, endMs int64, avlTime time.Time) {

	first, last, ok := g.intermediateRange(block, oldMatch, newMatch, departedStop, arrivedStop)
	if !ok {
		return
	}

	// expected milliseconds for each traversed segment: travel over each
	// path and dwell at each intermediate stop
	type segment struct {
		ind    avl.Indices
		travel int64
		dwell  int64
	}
	var segments []segment
	totalExpected := int64(0)
	for ind := first; ; {
		travel := int64(block.PathTravelSeconds(ind.TripIndex, ind.StopPathIndex)) * 1000
		dwell := int64(block.PathDwellSeconds(ind.TripIndex, ind.StopPathIndex)) * 1000
		segments = append(segments, segment{ind: ind, travel: travel, dwell: dwell})
		totalExpected += travel + dwell
		if ind.Same(last) {
			break
		}
		var okNext bool
		ind, okNext = nextIndices(block, ind)
		if !okNext {
			break
		}
	}

	elapsed := endMs - beginMs
	speedRatio := 1.0
	if totalExpected > minExpectedTravelMsec && elapsed > 0 {
		speedRatio = float64(elapsed) / float64(totalExpected)
	}

	scaled := func(expected int64) int64 {
		ms := int64(math.Round(float64(expected) * speedRatio))
		if ms < 1 {
			ms = 1
		}
		return ms
	}

	currentMs := beginMs
	for _, seg := range segments {
		currentMs += scaled(seg.travel)
		if currentMs >= endMs {
			currentMs = endMs - 1
		}
		g.store(status, block, g.makeRecord(status, block, avl.Arrival, seg.ind, time.UnixMilli(currentMs), avlTime))
		currentMs += scaled(seg.dwell)
		if currentMs >= endMs {
			currentMs = endMs - 1
		}
		g.writeDeparture(status, block, seg.ind, currentMs, avlTime)
	}
}

// intermediateRange finds the stops strictly between the position already
// handled behind the vehicle and the stop the vehicle is arriving at.
func (g *arrivalDepartureGenerator) intermediateRange(block *gtfs.Block, oldMatch, newMatch *avl.TemporalMatch,
	departedStop, arrivedStop *avl.VehicleAtStopInfo) (avl.Indices, avl.Indices, bool) {

	var first avl.Indices
	if departedStop != nil {
		next, ok := nextIndices(block, departedStop.Indices)
		if !ok {
			return avl.Indices{}, avl.Indices{}, false
		}
		first = next
	} else {
		first = oldMatch.Indices
	}

	// the last intermediate stop is the one before the vehicle's position,
	// or before the stop the arrival record covers
	lastExclusive := newMatch.Indices
	if arrivedStop != nil {
		lastExclusive = arrivedStop.Indices
	}
	if !first.Before(lastExclusive, block.NoSchedule) {
		return avl.Indices{}, avl.Indices{}, false
	}
	last := first
	for {
		next, ok := nextIndices(block, last)
		if !ok || !next.Before(lastExclusive, block.NoSchedule) {
			break
		}
		last = next
	}
	return first, last, true
}

// estimateWithoutPreviousMatch reconstructs the start of the very first trip
// for a vehicle that shows up already partway along it. Only a handful of
// stops are inferred, and never for a vehicle that just regained the block
// it was already on.
func (g *arrivalDepartureGenerator) estimateWithoutPreviousMatch(status *VehicleStatus, block *gtfs.Block) {
	if status.NewlyAssignedToSameBlock {
		return
	}
	match := status.Match
	report := status.LastReport
	if match.TripIndex != 0 {
		return
	}
	if match.StopPathIndex <= 0 || match.StopPathIndex >= g.cfg.MaxStopsWhenNoPreviousMatch {
		return
	}

	avlMs := report.Time.UnixMilli()
	start := &avl.SpatialMatch{Indices: avl.Indices{TripIndex: 0, StopPathIndex: 0}}
	expected := g.travelMsec(status, block, start, &match.SpatialMatch)
	currentMs := avlMs - expected

	// departure from the first stop, then alternating arrivals and
	// departures up to the stop behind the vehicle
	firstStop := avl.Indices{TripIndex: 0, StopPathIndex: 0}
	g.writeDeparture(status, block, firstStop, currentMs, report.Time)

	for pathIndex := 1; pathIndex < match.StopPathIndex; pathIndex++ {
		ind := avl.Indices{TripIndex: 0, StopPathIndex: pathIndex}
		currentMs += int64(block.PathTravelSeconds(0, pathIndex)) * 1000
		g.store(status, block, g.makeRecord(status, block, avl.Arrival, ind, time.UnixMilli(currentMs), report.Time))
		currentMs += int64(block.PathDwellSeconds(0, pathIndex)) * 1000
		g.writeDeparture(status, block, ind, currentMs, report.Time)
	}

	if match.AtStop != nil && match.AtStop.Indices.Same(match.Indices) {
		g.store(status, block,
			g.makeRecord(status, block, avl.Arrival, match.Indices, report.Time, report.Time))
	}
}

func (g *arrivalDepartureGenerator) travelMsec(status *VehicleStatus, block *gtfs.Block,
	from, to *avl.SpatialMatch) int64 {

	return g.travel.ExpectedTravelTimeMsec(status.VehicleId, status.ServiceDate, block, from, to)
}

// writeDeparture stores a departure and raises terminal departure events for
// the first stop of a trip.
func (g *arrivalDepartureGenerator) writeDeparture(status *VehicleStatus, block *gtfs.Block,
	ind avl.Indices, departureMs int64, avlTime time.Time) {

	record := g.makeRecord(status, block, avl.Departure, ind, time.UnixMilli(departureMs), avlTime)
	if !g.store(status, block, record) {
		return
	}
	if ind.StopPathIndex != 0 || block.NoSchedule {
		return
	}

	scheduled := gtfs.MakeScheduleTime(status.ServiceDate, record.ScheduledSeconds)
	deviation := avl.MakeTemporalDifference(scheduled, record.Time)
	var eventType string
	switch {
	case deviation.EarlierThan(g.cfg.TerminalEarly):
		eventType = avl.EventLeftTerminalEarly
	case deviation.LaterThan(g.cfg.TerminalLate):
		eventType = avl.EventLeftTerminalLate
	default:
		return
	}
	event := avl.VehicleEvent{
		VehicleId:   status.VehicleId,
		Time:        time.Now(),
		AvlTime:     avlTime,
		EventType:   eventType,
		Description: fmt.Sprintf("left terminal %s %s", record.StopId, deviation),
		Predictable: true,
		BlockId:     record.BlockId,
		ServiceId:   record.ServiceId,
		TripId:      record.TripId,
		RouteId:     record.RouteId,
		StopId:      record.StopId,
	}
	if status.LastReport != nil {
		event.Latitude = status.LastReport.Latitude
		event.Longitude = status.LastReport.Longitude
	}
	g.log.Printf("%s", &event)
	if err := g.sink.VehicleEvent(&event); err != nil {
		g.log.Printf("failed recording %s event for vehicle %s: %v", eventType, status.VehicleId, err)
	}
}

// makeRecord assembles an ArrivalDeparture for the stop ending the path at
// ind.
func (g *arrivalDepartureGenerator) makeRecord(status *VehicleStatus, block *gtfs.Block,
	kind string, ind avl.Indices, at time.Time, avlTime time.Time) *avl.ArrivalDeparture {

	record := avl.ArrivalDeparture{
		Kind:          kind,
		VehicleId:     status.VehicleId,
		Time:          at,
		AvlTime:       avlTime,
		BlockId:       status.BlockId,
		ServiceId:     status.ServiceId,
		TripIndex:     ind.TripIndex,
		StopPathIndex: ind.StopPathIndex,
		ServiceDate:   status.ServiceDate,
	}
	if trip := block.TripAt(ind.TripIndex); trip != nil {
		record.TripId = trip.TripId
		record.RouteId = trip.RouteId
	}
	if path := block.StopPath(ind.TripIndex, ind.StopPathIndex); path != nil {
		record.StopId = path.StopId
		if !block.NoSchedule {
			if kind == avl.Arrival {
				record.ScheduledSeconds = path.ArrivalSeconds
			} else {
				record.ScheduledSeconds = path.DepartureSeconds
			}
		}
	}
	return &record
}

// store applies the sanity filter and persists the record. It reports
// whether the record was kept.
func (g *arrivalDepartureGenerator) store(status *VehicleStatus, block *gtfs.Block,
	record *avl.ArrivalDeparture) bool {

	difference := record.Time.Sub(record.AvlTime)
	if difference < 0 {
		difference = -difference
	}
	if difference > g.cfg.AllowableAvlTimeDifference {
		g.log.Printf("discarding %s for vehicle %s stop %s, %s from report time",
			record.Kind, record.VehicleId, record.StopId, difference)
		return false
	}

	path := block.StopPath(record.TripIndex, record.StopPathIndex)
	lastOfTrip := path != nil && path.LastStopInTrip
	if record.IsArrival() && lastOfTrip && block.NoSchedule &&
		record.TripIndex == block.LastTripIndex() {
		// the last stop of a no-schedule loop block has no meaningful
		// arrival, the vehicle just starts the loop again
		return false
	}

	if err := g.sink.ArrivalDeparture(record); err != nil {
		g.log.Printf("failed recording %s for vehicle %s stop %s: %v",
			record.Kind, record.VehicleId, record.StopId, err)
	}

	if record.IsArrival() {
		if record.Time.After(status.LastArrivalTime) {
			status.LastArrivalTime = record.Time
		}
		if lastOfTrip {
			status.TripCounter++
		}
	}
	return true
}
