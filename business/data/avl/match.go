package avl

import (
	"fmt"
	"time"
)

// Indices names a position in a block's schedule: which trip and which stop
// path within that trip.
type Indices struct {
	TripIndex     int `db:"trip_index"`
	StopPathIndex int `db:"stop_path_index"`
}

func (i Indices) String() string {
	return fmt.Sprintf("trip %d path %d", i.TripIndex, i.StopPathIndex)
}

// Before reports whether i is an earlier schedule position than o. For
// frequency based blocks only the stop path index is meaningful, since the
// matcher cannot tell repeated loop trips apart.
func (i Indices) Before(o Indices, noSchedule bool) bool {
	if noSchedule {
		return i.StopPathIndex < o.StopPathIndex
	}
	if i.TripIndex != o.TripIndex {
		return i.TripIndex < o.TripIndex
	}
	return i.StopPathIndex < o.StopPathIndex
}

// Same reports whether both name the same stop path.
func (i Indices) Same(o Indices) bool {
	return i.TripIndex == o.TripIndex && i.StopPathIndex == o.StopPathIndex
}

// VehicleAtStopInfo identifies the stop a match is considered to be at.
type VehicleAtStopInfo struct {
	Indices
	StopId string
}

// SpatialMatch is a geometric placement of a fix on a block: the stop path
// it lies on, how far along it, and how far laterally from the path.
type SpatialMatch struct {
	Indices
	// DistanceAlongStopPath in meters from the start of the stop path
	DistanceAlongStopPath float64
	// DistanceToSegment is the lateral distance in meters from the fix to
	// the matched geometry
	DistanceToSegment float64
	// AtStop is non-nil when the fix is within the stop radius of a stop,
	// which may be the stop ending the previous path or this one
	AtStop *VehicleAtStopInfo
	// AtLayover is true when the match sits at a wait stop
	AtLayover bool
}

func (m *SpatialMatch) String() string {
	return fmt.Sprintf("spatial match %s along %0.1fm offset %0.1fm",
		m.Indices, m.DistanceAlongStopPath, m.DistanceToSegment)
}

// AtStopWithIndices reports whether the match is at the stop named by ind.
func (m *SpatialMatch) AtStopWithIndices(ind Indices) bool {
	return m.AtStop != nil && m.AtStop.Indices.Same(ind)
}

// TemporalMatch is a spatial match a temporal matcher accepted, carrying the
// block identity, service context and how far off schedule the vehicle is.
type TemporalMatch struct {
	SpatialMatch
	BlockId     string
	ServiceId   string
	ServiceDate time.Time
	AvlTime     time.Time
	// Deviation is positive when the vehicle is early
	Deviation TemporalDifference
}

func (m *TemporalMatch) String() string {
	return fmt.Sprintf("temporal match block %s %s %s", m.BlockId, m.Indices, m.Deviation)
}

// SameBlock reports whether o places the vehicle on the same block under the
// same service.
func (m *TemporalMatch) SameBlock(o *TemporalMatch) bool {
	return o != nil && m.BlockId == o.BlockId && m.ServiceId == o.ServiceId
}
