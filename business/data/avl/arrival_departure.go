package avl

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Arrival/departure kinds.
const (
	Arrival   = "ARRIVAL"
	Departure = "DEPARTURE"
)

// ArrivalDeparture is one estimated stop event: the time a vehicle arrived
// at or departed from a scheduled stop, inferred from its matches.
type ArrivalDeparture struct {
	Id            int64     `db:"id"`
	Kind          string    `db:"kind"`
	VehicleId     string    `db:"vehicle_id"`
	Time          time.Time `db:"time"`
	AvlTime       time.Time `db:"avl_time"`
	StopId        string    `db:"stop_id"`
	TripId        string    `db:"trip_id"`
	BlockId       string    `db:"block_id"`
	RouteId       string    `db:"route_id"`
	ServiceId     string    `db:"service_id"`
	TripIndex     int       `db:"trip_index"`
	StopPathIndex int       `db:"stop_path_index"`
	ServiceDate   time.Time `db:"service_date"`
	// ScheduledSeconds is the schedule time for this stop event, seconds
	// past the service date midnight. Zero for no-schedule blocks.
	ScheduledSeconds int `db:"scheduled_seconds"`
}

func (ad *ArrivalDeparture) String() string {
	return fmt.Sprintf("%s vehicle %s stop %s trip %s at %s",
		ad.Kind, ad.VehicleId, ad.StopId, ad.TripId, ad.Time.Format("2006-01-02T15:04:05.000"))
}

// IsArrival reports whether the record is an arrival.
func (ad *ArrivalDeparture) IsArrival() bool {
	return ad.Kind == Arrival
}

// RecordArrivalDeparture inserts the record.
func RecordArrivalDeparture(db *sqlx.DB, ad *ArrivalDeparture) error {
	statement := "insert into arrival_departure (kind, vehicle_id, time, avl_time, stop_id, trip_id, " +
		"block_id, route_id, service_id, trip_index, stop_path_index, service_date, scheduled_seconds) " +
		"values (:kind, :vehicle_id, :time, :avl_time, :stop_id, :trip_id, " +
		":block_id, :route_id, :service_id, :trip_index, :stop_path_index, :service_date, :scheduled_seconds)"
	_, err := db.NamedExec(db.Rebind(statement), ad)
	if err != nil {
		return fmt.Errorf("recording %s for vehicle %s stop %s: %w", ad.Kind, ad.VehicleId, ad.StopId, err)
	}
	return nil
}
