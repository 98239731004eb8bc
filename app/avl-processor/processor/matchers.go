package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// atStopRadiusMeters is how close a fix must be to a stop to be considered
// at it.
const atStopRadiusMeters = 50.0

// scheduleSpatialMatcher places fixes against the straight line segments
// between consecutive scheduled stops. Agencies with shape geometry can
// substitute their own SpatialMatcher; this one only needs stop locations.
type scheduleSpatialMatcher struct {
	index *gtfs.Index
	cfg   *Config
}

func newScheduleSpatialMatcher(index *gtfs.Index, cfg *Config) *scheduleSpatialMatcher {
	return &scheduleSpatialMatcher{index: index, cfg: cfg}
}

func (sm *scheduleSpatialMatcher) MatchesForBlock(report *avl.Report, block *gtfs.Block) []*avl.SpatialMatch {
	return sm.matchesInRange(report, block, avl.Indices{}, false)
}

func (sm *scheduleSpatialMatcher) MatchesNearPrevious(report *avl.Report, block *gtfs.Block,
	previous *avl.TemporalMatch) []*avl.SpatialMatch {

	if previous == nil {
		return sm.MatchesForBlock(report, block)
	}
	matches := sm.matchesInRange(report, block, previous.Indices, true)
	result := make([]*avl.SpatialMatch, 0, len(matches))
	for _, m := range matches {
		// never place the vehicle behind where it already was
		if m.Indices.Same(previous.Indices) && m.DistanceAlongStopPath < previous.DistanceAlongStopPath {
			continue
		}
		result = append(result, m)
	}
	return result
}

// matchesInRange walks the block's stop paths from the given position to the
// end, placing the fix on each path segment within the match distance.
func (sm *scheduleSpatialMatcher) matchesInRange(report *avl.Report, block *gtfs.Block,
	from avl.Indices, bounded bool) []*avl.SpatialMatch {

	var result []*avl.SpatialMatch
	for tripIndex := 0; tripIndex < len(block.Trips); tripIndex++ {
		if bounded && tripIndex < from.TripIndex {
			continue
		}
		trip := block.Trips[tripIndex]
		for pathIndex := 0; pathIndex < len(trip.StopPaths); pathIndex++ {
			if bounded && tripIndex == from.TripIndex && pathIndex < from.StopPathIndex {
				continue
			}
			if match := sm.matchToPath(report, block, tripIndex, pathIndex); match != nil {
				result = append(result, match)
			}
		}
	}
	return result
}

func (sm *scheduleSpatialMatcher) matchToPath(report *avl.Report, block *gtfs.Block,
	tripIndex, pathIndex int) *avl.SpatialMatch {

	path := block.StopPath(tripIndex, pathIndex)
	if path == nil {
		return nil
	}
	endStop, ok := sm.index.Stop(path.StopId)
	if !ok {
		return nil
	}
	startStop := sm.pathStartStop(block, tripIndex, pathIndex)
	if startStop == nil {
		startStop = endStop
	}

	distance, fraction := nearestPointOnSegment(report.Latitude, report.Longitude,
		startStop.Latitude, startStop.Longitude, endStop.Latitude, endStop.Longitude)
	if distance > sm.cfg.MaxMatchDistance {
		return nil
	}

	match := avl.SpatialMatch{
		Indices:               avl.Indices{TripIndex: tripIndex, StopPathIndex: pathIndex},
		DistanceAlongStopPath: fraction * path.Length,
		DistanceToSegment:     distance,
	}
	sm.setAtStop(report, &match, block, path, startStop, endStop)
	return &match
}

// pathStartStop finds the stop the path departs from, crossing the trip
// boundary for the first path of later trips.
func (sm *scheduleSpatialMatcher) pathStartStop(block *gtfs.Block, tripIndex, pathIndex int) *gtfs.Stop {
	var prevStopId string
	if prev := block.StopPath(tripIndex, pathIndex-1); prev != nil {
		prevStopId = prev.StopId
	} else if prevTrip := block.TripAt(tripIndex - 1); prevTrip != nil && len(prevTrip.StopPaths) > 0 {
		prevStopId = prevTrip.StopPaths[len(prevTrip.StopPaths)-1].StopId
	} else {
		return nil
	}
	stop, ok := sm.index.Stop(prevStopId)
	if !ok {
		return nil
	}
	return stop
}

// setAtStop marks the match at-stop when the fix is within the stop radius
// of either end of the path. Being at the path's start stop means being at
// the stop that ends the previous path.
func (sm *scheduleSpatialMatcher) setAtStop(report *avl.Report, match *avl.SpatialMatch,
	block *gtfs.Block, path *gtfs.StopPath, startStop, endStop *gtfs.Stop) {

	if latLngDistanceMeters(report.Latitude, report.Longitude, endStop.Latitude, endStop.Longitude) <= atStopRadiusMeters {
		match.AtStop = &avl.VehicleAtStopInfo{Indices: match.Indices, StopId: endStop.StopId}
		match.AtLayover = path.WaitStop
		return
	}
	if startStop != endStop &&
		latLngDistanceMeters(report.Latitude, report.Longitude, startStop.Latitude, startStop.Longitude) <= atStopRadiusMeters {
		prevIndices := avl.Indices{TripIndex: match.TripIndex, StopPathIndex: match.StopPathIndex - 1}
		if match.StopPathIndex == 0 {
			if prevTrip := block.TripAt(match.TripIndex - 1); prevTrip != nil {
				prevIndices = avl.Indices{TripIndex: match.TripIndex - 1, StopPathIndex: prevTrip.LastStopPathIndex()}
			}
		}
		match.AtStop = &avl.VehicleAtStopInfo{Indices: prevIndices, StopId: startStop.StopId}
		if prevPath := block.StopPath(prevIndices.TripIndex, prevIndices.StopPathIndex); prevPath != nil {
			match.AtLayover = prevPath.WaitStop
		}
	}
}

func (sm *scheduleSpatialMatcher) MatchToLayoverStop(report *avl.Report, block *gtfs.Block) *avl.SpatialMatch {
	var best *avl.SpatialMatch
	bestDistance := sm.cfg.LayoverDistance
	for tripIndex, trip := range block.Trips {
		for pathIndex, path := range trip.StopPaths {
			if !path.WaitStop {
				continue
			}
			stop, ok := sm.index.Stop(path.StopId)
			if !ok {
				continue
			}
			distance := latLngDistanceMeters(report.Latitude, report.Longitude, stop.Latitude, stop.Longitude)
			if distance > bestDistance {
				continue
			}
			bestDistance = distance
			indices := avl.Indices{TripIndex: tripIndex, StopPathIndex: pathIndex}
			best = &avl.SpatialMatch{
				Indices:               indices,
				DistanceAlongStopPath: path.Length,
				DistanceToSegment:     distance,
				AtStop:                &avl.VehicleAtStopInfo{Indices: indices, StopId: path.StopId},
				AtLayover:             true,
			}
		}
	}
	return best
}

// scheduleTemporalMatcher accepts the schedule-closest spatial match inside
// the allowable adherence bounds.
type scheduleTemporalMatcher struct {
	cfg *Config
}

func newScheduleTemporalMatcher(cfg *Config) *scheduleTemporalMatcher {
	return &scheduleTemporalMatcher{cfg: cfg}
}

func (tm *scheduleTemporalMatcher) BestTemporalMatch(report *avl.Report, block *gtfs.Block,
	serviceDate time.Time, spatials []*avl.SpatialMatch) *avl.TemporalMatch {

	var best *avl.TemporalMatch
	for _, spatial := range spatials {
		deviation := scheduleDeviation(block, serviceDate, spatial, report.Time)
		if !deviation.WithinBounds(tm.cfg.AllowableEarly, tm.cfg.AllowableLate) {
			continue
		}
		candidate := avl.TemporalMatch{
			SpatialMatch: *spatial,
			BlockId:      block.BlockId,
			ServiceId:    block.ServiceId,
			ServiceDate:  serviceDate,
			AvlTime:      report.Time,
			Deviation:    deviation,
		}
		if best == nil || candidate.Deviation.BetterThan(best.Deviation, tm.cfg.EarlyToLateRatio) {
			best = &candidate
		}
	}
	return best
}
