package gtfs

import (
	"fmt"
	"time"
)

// Block is the full day's work for one vehicle: an ordered series of trips
// sharing a block id under one service id.
type Block struct {
	DataSetId int64
	ServiceId string
	BlockId   string
	// NoSchedule is true for frequency based blocks whose trips repeat a loop
	// without fixed stop times
	NoSchedule bool
	Trips      []*Trip
}

func (b *Block) String() string {
	return fmt.Sprintf("block %s service %s with %d trips", b.BlockId, b.ServiceId, len(b.Trips))
}

// TripAt returns the trip at tripIndex or nil when out of range.
func (b *Block) TripAt(tripIndex int) *Trip {
	if tripIndex < 0 || tripIndex >= len(b.Trips) {
		return nil
	}
	return b.Trips[tripIndex]
}

// LastTripIndex returns the index of the final trip, -1 for an empty block.
func (b *Block) LastTripIndex() int {
	return len(b.Trips) - 1
}

// StopPath returns the stop path at (tripIndex, stopPathIndex) or nil.
func (b *Block) StopPath(tripIndex, stopPathIndex int) *StopPath {
	trip := b.TripAt(tripIndex)
	if trip == nil {
		return nil
	}
	return trip.StopPathAt(stopPathIndex)
}

// StartSeconds is the scheduled start of the block's first trip.
func (b *Block) StartSeconds() int {
	if len(b.Trips) == 0 {
		return 0
	}
	return b.Trips[0].StartSeconds()
}

// EndSeconds is the scheduled end of the block's last trip.
func (b *Block) EndSeconds() int {
	if len(b.Trips) == 0 {
		return 0
	}
	return b.Trips[len(b.Trips)-1].EndSeconds()
}

// IsActiveAt reports whether at falls inside the block's scheduled span on
// serviceDate, widened by before at the start and after at the end.
func (b *Block) IsActiveAt(at time.Time, serviceDate time.Time, before, after time.Duration) bool {
	start := MakeScheduleTime(serviceDate, b.StartSeconds()).Add(-before)
	end := MakeScheduleTime(serviceDate, b.EndSeconds()).Add(after)
	return !at.Before(start) && !at.After(end)
}

// prevDepartureSeconds gives the scheduled departure preceding the stop path
// at (tripIndex, stopPathIndex), crossing the trip boundary when needed. For
// the block's very first path the path's own arrival is returned.
func (b *Block) prevDepartureSeconds(tripIndex, stopPathIndex int) int {
	trip := b.TripAt(tripIndex)
	if trip == nil {
		return 0
	}
	if stopPathIndex > 0 {
		if prev := trip.StopPathAt(stopPathIndex - 1); prev != nil {
			return prev.DepartureSeconds
		}
	}
	if prevTrip := b.TripAt(tripIndex - 1); prevTrip != nil && len(prevTrip.StopPaths) > 0 {
		return prevTrip.StopPaths[len(prevTrip.StopPaths)-1].DepartureSeconds
	}
	if path := trip.StopPathAt(stopPathIndex); path != nil {
		return path.ArrivalSeconds
	}
	return 0
}

// PathTravelSeconds is the scheduled travel time over the stop path at
// (tripIndex, stopPathIndex), crossing the trip boundary for the first path
// of later trips. Never negative.
func (b *Block) PathTravelSeconds(tripIndex, stopPathIndex int) int {
	path := b.StopPath(tripIndex, stopPathIndex)
	if path == nil {
		return 0
	}
	travel := path.ArrivalSeconds - b.prevDepartureSeconds(tripIndex, stopPathIndex)
	if travel < 0 {
		return 0
	}
	return travel
}

// PathDwellSeconds is the scheduled dwell at the stop ending the path at
// (tripIndex, stopPathIndex). Never negative.
func (b *Block) PathDwellSeconds(tripIndex, stopPathIndex int) int {
	trip := b.TripAt(tripIndex)
	if trip == nil {
		return 0
	}
	return trip.PathDwellSeconds(stopPathIndex)
}

// ScheduleSecondsAt interpolates the scheduled time at a position partway
// along a stop path, proportionally to the distance covered.
func (b *Block) ScheduleSecondsAt(tripIndex, stopPathIndex int, distanceAlongPath float64) int {
	path := b.StopPath(tripIndex, stopPathIndex)
	if path == nil {
		return 0
	}
	prevDeparture := b.prevDepartureSeconds(tripIndex, stopPathIndex)
	travel := path.ArrivalSeconds - prevDeparture
	if travel <= 0 || path.Length <= 0 {
		return path.ArrivalSeconds
	}
	fraction := distanceAlongPath / path.Length
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return prevDeparture + int(float64(travel)*fraction)
}

// DistanceAlong accumulates the meters from the start of the block to the
// position distanceAlongPath into the stop path at (tripIndex, stopPathIndex).
func (b *Block) DistanceAlong(tripIndex, stopPathIndex int, distanceAlongPath float64) float64 {
	total := 0.0
	for ti := 0; ti <= tripIndex && ti < len(b.Trips); ti++ {
		trip := b.Trips[ti]
		lastPath := len(trip.StopPaths)
		if ti == tripIndex {
			lastPath = stopPathIndex
		}
		for pi := 0; pi < lastPath && pi < len(trip.StopPaths); pi++ {
			total += trip.StopPaths[pi].Length
		}
	}
	return total + distanceAlongPath
}

// TraversedWaitStop reports whether any wait stop lies after the position
// (fromTrip, fromPath) up to and including (toTrip, toPath).
func (b *Block) TraversedWaitStop(fromTrip, fromPath, toTrip, toPath int) bool {
	for ti := fromTrip; ti <= toTrip && ti < len(b.Trips); ti++ {
		trip := b.Trips[ti]
		startPath := 0
		if ti == fromTrip {
			startPath = fromPath + 1
		}
		endPath := len(trip.StopPaths) - 1
		if ti == toTrip && toPath < endPath {
			endPath = toPath
		}
		for pi := startPath; pi <= endPath; pi++ {
			if trip.StopPaths[pi].WaitStop {
				return true
			}
		}
	}
	return false
}
