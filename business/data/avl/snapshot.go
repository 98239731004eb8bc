package avl

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// VehicleSnapshot is the externally visible state of one vehicle after a
// report has been processed. It is what the snapshot cache serves and what
// gets persisted for state recovery.
type VehicleSnapshot struct {
	VehicleId   string    `db:"vehicle_id"`
	AvlTime     time.Time `db:"avl_time"`
	Latitude    float64   `db:"latitude"`
	Longitude   float64   `db:"longitude"`
	Predictable bool      `db:"predictable"`
	// ScheduleBased marks a placeholder vehicle positioned from the schedule
	// rather than a real AVL feed; it never holds a block exclusively
	ScheduleBased bool   `db:"schedule_based"`
	BlockId       string `db:"block_id"`
	ServiceId     string `db:"service_id"`
	TripId        string `db:"trip_id"`
	RouteId       string `db:"route_id"`
	// NextStopId is the stop the vehicle is heading to, empty when not
	// predictable
	NextStopId    string `db:"next_stop_id"`
	TripIndex     int    `db:"trip_index"`
	StopPathIndex int    `db:"stop_path_index"`
	// ScheduleDeviationMsec is positive when early, nil when unknown
	ScheduleDeviationMsec *int64 `db:"schedule_deviation_msec"`
	AssignmentId          string `db:"assignment_id"`
}

func (s *VehicleSnapshot) String() string {
	return fmt.Sprintf("vehicle %s predictable %t block %s at %s",
		s.VehicleId, s.Predictable, s.BlockId, s.AvlTime.Format("2006-01-02T15:04:05"))
}

// RecordVehicleSnapshot upserts the vehicle's latest snapshot.
func RecordVehicleSnapshot(db *sqlx.DB, s *VehicleSnapshot) error {
	statement := "insert into vehicle_snapshot (vehicle_id, avl_time, latitude, longitude, predictable, " +
		"schedule_based, block_id, service_id, trip_id, route_id, next_stop_id, trip_index, stop_path_index, " +
		"schedule_deviation_msec, assignment_id) " +
		"values (:vehicle_id, :avl_time, :latitude, :longitude, :predictable, " +
		":schedule_based, :block_id, :service_id, :trip_id, :route_id, :next_stop_id, :trip_index, :stop_path_index, " +
		":schedule_deviation_msec, :assignment_id) " +
		"on conflict (vehicle_id) do update set " +
		"avl_time = excluded.avl_time, " +
		"latitude = excluded.latitude, " +
		"longitude = excluded.longitude, " +
		"predictable = excluded.predictable, " +
		"schedule_based = excluded.schedule_based, " +
		"block_id = excluded.block_id, " +
		"service_id = excluded.service_id, " +
		"trip_id = excluded.trip_id, " +
		"route_id = excluded.route_id, " +
		"next_stop_id = excluded.next_stop_id, " +
		"trip_index = excluded.trip_index, " +
		"stop_path_index = excluded.stop_path_index, " +
		"schedule_deviation_msec = excluded.schedule_deviation_msec, " +
		"assignment_id = excluded.assignment_id"
	_, err := db.NamedExec(db.Rebind(statement), s)
	if err != nil {
		return fmt.Errorf("recording snapshot for vehicle %s: %w", s.VehicleId, err)
	}
	return nil
}
