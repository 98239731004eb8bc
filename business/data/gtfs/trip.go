package gtfs

import (
	"fmt"
)

// StopPath is the piece of a trip's geometry ending at one scheduled stop.
// Stop path 0 ends at the trip's first stop. Schedule times are seconds past
// the service date's midnight.
type StopPath struct {
	// StopId of the stop this path arrives at
	StopId string `db:"stop_id"`
	// StopPathIndex is the position of this path inside its trip, starting at zero
	StopPathIndex int `db:"stop_path_index"`
	// Length of the path in meters
	Length float64 `db:"length"`
	// ArrivalSeconds the vehicle is scheduled to arrive at the stop
	ArrivalSeconds int `db:"arrival_seconds"`
	// DepartureSeconds the vehicle is scheduled to leave the stop
	DepartureSeconds int `db:"departure_seconds"`
	// WaitStop is true when the schedule requires the vehicle to hold at the
	// stop until its departure time, such as a terminal or timepoint layover
	WaitStop bool `db:"wait_stop"`
	// LastStopInTrip is true for the final path of the trip
	LastStopInTrip bool `db:"last_stop_in_trip"`
}

// Trip is one scheduled run inside a block.
type Trip struct {
	TripId      string `db:"trip_id"`
	DataSetId   int64  `db:"data_set_id"`
	ServiceId   string `db:"service_id"`
	BlockId     string `db:"block_id"`
	RouteId     string `db:"route_id"`
	Headsign    string `db:"headsign"`
	DirectionId string `db:"direction_id"`
	// TripIndex is the position of this trip inside its block, starting at zero
	TripIndex int
	StopPaths []*StopPath
}

func (t *Trip) String() string {
	return fmt.Sprintf("trip %s block %s route %s", t.TripId, t.BlockId, t.RouteId)
}

// LastStopPathIndex returns the index of the final stop path, -1 when the
// trip carries no stop paths.
func (t *Trip) LastStopPathIndex() int {
	return len(t.StopPaths) - 1
}

// StopPathAt returns the stop path at index or nil when out of range.
func (t *Trip) StopPathAt(index int) *StopPath {
	if index < 0 || index >= len(t.StopPaths) {
		return nil
	}
	return t.StopPaths[index]
}

// StartSeconds is the scheduled departure from the trip's first stop.
func (t *Trip) StartSeconds() int {
	if len(t.StopPaths) == 0 {
		return 0
	}
	return t.StopPaths[0].DepartureSeconds
}

// EndSeconds is the scheduled arrival at the trip's last stop.
func (t *Trip) EndSeconds() int {
	if len(t.StopPaths) == 0 {
		return 0
	}
	return t.StopPaths[len(t.StopPaths)-1].ArrivalSeconds
}

// PathTravelSeconds is the scheduled travel time along stop path index,
// from the departure at the previous stop to the arrival at this one. The
// first stop path of the first trip in a block has no previous departure and
// reports zero. Never negative.
func (t *Trip) PathTravelSeconds(index int) int {
	path := t.StopPathAt(index)
	if path == nil {
		return 0
	}
	var prevDeparture int
	if index == 0 {
		return 0
	}
	prevDeparture = t.StopPaths[index-1].DepartureSeconds
	travel := path.ArrivalSeconds - prevDeparture
	if travel < 0 {
		return 0
	}
	return travel
}

// PathDwellSeconds is the scheduled time spent stopped at the stop ending
// stop path index. Never negative.
func (t *Trip) PathDwellSeconds(index int) int {
	path := t.StopPathAt(index)
	if path == nil {
		return 0
	}
	dwell := path.DepartureSeconds - path.ArrivalSeconds
	if dwell < 0 {
		return 0
	}
	return dwell
}
