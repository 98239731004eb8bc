package avl

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Vehicle event types.
const (
	EventPredictable        = "PREDICTABLE"
	EventNoMatch            = "NO_MATCH"
	EventNoProgress         = "NO_PROGRESS"
	EventDelayed            = "DELAYED"
	EventEndOfBlock         = "END_OF_BLOCK"
	EventAssignmentChanged  = "ASSIGNMENT_CHANGED"
	EventAssignmentGrabbed  = "ASSIGNMENT_GRABBED"
	EventNotLeavingTerminal = "NOT_LEAVING_TERMINAL"
	EventLeftTerminalEarly  = "LEFT_TERMINAL_EARLY"
	EventLeftTerminalLate   = "LEFT_TERMINAL_LATE"
	EventAvlConflict        = "AVL_CONFLICT"
)

// VehicleEvent records a notable transition in a vehicle's processing, such
// as becoming predictable, losing its match or having its assignment taken.
type VehicleEvent struct {
	Id        int64     `db:"id"`
	VehicleId string    `db:"vehicle_id"`
	Time      time.Time `db:"time"`
	AvlTime   time.Time `db:"avl_time"`
	EventType string    `db:"event_type"`
	// Description is free text detail for operators reviewing the event
	Description string  `db:"description"`
	Predictable bool    `db:"predictable"`
	// BecameUnpredictable is true when this event is the moment the vehicle
	// lost predictability
	BecameUnpredictable bool    `db:"became_unpredictable"`
	Latitude            float64 `db:"latitude"`
	Longitude           float64 `db:"longitude"`
	BlockId             string  `db:"block_id"`
	ServiceId           string  `db:"service_id"`
	TripId              string  `db:"trip_id"`
	RouteId             string  `db:"route_id"`
	StopId              string  `db:"stop_id"`
}

func (e *VehicleEvent) String() string {
	return fmt.Sprintf("%s vehicle %s at %s: %s",
		e.EventType, e.VehicleId, e.AvlTime.Format("2006-01-02T15:04:05"), e.Description)
}

// RecordVehicleEvent inserts the event.
func RecordVehicleEvent(db *sqlx.DB, e *VehicleEvent) error {
	statement := "insert into vehicle_event (vehicle_id, time, avl_time, event_type, description, " +
		"predictable, became_unpredictable, latitude, longitude, block_id, service_id, trip_id, route_id, stop_id) " +
		"values (:vehicle_id, :time, :avl_time, :event_type, :description, " +
		":predictable, :became_unpredictable, :latitude, :longitude, :block_id, :service_id, :trip_id, :route_id, :stop_id)"
	_, err := db.NamedExec(db.Rebind(statement), e)
	if err != nil {
		return fmt.Errorf("recording %s event for vehicle %s: %w", e.EventType, e.VehicleId, err)
	}
	return nil
}
