// Package avl holds the vehicle location data model shared by the processor
// and its sinks: raw reports, spatial and temporal matches, vehicle events,
// arrival and departure records and vehicle snapshots, with sqlx persistence
// for the durable records.
package avl

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AssignmentType says how a report's assignment id should be interpreted.
type AssignmentType string

const (
	AssignmentBlock AssignmentType = "BLOCK_ID"
	AssignmentRoute AssignmentType = "ROUTE_ID"
	AssignmentTrip  AssignmentType = "TRIP_ID"
	// AssignmentPrevious marks a synthesized report reusing the vehicle's
	// prior assignment after the feed stopped sending one
	AssignmentPrevious AssignmentType = "PREVIOUS"
	AssignmentUnset    AssignmentType = "UNSET"
)

// Report is one vehicle location fix from the feed.
type Report struct {
	VehicleId string    `db:"vehicle_id"`
	Time      time.Time `db:"time"`
	// TimeProcessed is set when the processor picks the report up
	TimeProcessed  time.Time      `db:"time_processed"`
	Latitude       float64        `db:"latitude"`
	Longitude      float64        `db:"longitude"`
	Speed          *float64       `db:"speed"`
	Heading        *float64       `db:"heading"`
	AssignmentId   string         `db:"assignment_id"`
	AssignmentType AssignmentType `db:"assignment_type"`
	Source         string         `db:"source"`
	// LeadVehicleId is set for trailing vehicles in a consist. Only the lead
	// vehicle's reports are processed.
	LeadVehicleId string `db:"lead_vehicle_id"`
	// ScheduleBased reports are synthesized from the schedule rather than
	// observed, and never advance the feed liveness watermark
	ScheduleBased bool `db:"schedule_based"`
}

func (r *Report) String() string {
	return fmt.Sprintf("vehicle %s at %0.6f,%0.6f time %s assignment %s(%s)",
		r.VehicleId, r.Latitude, r.Longitude,
		r.Time.Format("2006-01-02T15:04:05"), r.AssignmentId, r.AssignmentType)
}

// Validate reports caller contract violations: a report must carry a vehicle
// id, a timestamp and a position inside plausible coordinate space.
func (r *Report) Validate() error {
	if len(r.VehicleId) == 0 {
		return fmt.Errorf("avl report missing vehicle id: %s", r)
	}
	if r.Time.IsZero() {
		return fmt.Errorf("avl report for vehicle %s missing timestamp", r.VehicleId)
	}
	if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("avl report for vehicle %s has invalid position %0.6f,%0.6f",
			r.VehicleId, r.Latitude, r.Longitude)
	}
	return nil
}

// HasAssignment reports whether the feed attached a usable assignment.
func (r *Report) HasAssignment() bool {
	return len(r.AssignmentId) > 0 && r.AssignmentType != AssignmentUnset
}

// IgnoreBecauseInConsist is true for trailing consist vehicles.
func (r *Report) IgnoreBecauseInConsist() bool {
	return len(r.LeadVehicleId) > 0 && r.LeadVehicleId != r.VehicleId
}

// RecordReport inserts the report.
func RecordReport(db *sqlx.DB, r *Report) error {
	statement := "insert into avl_report (vehicle_id, time, time_processed, latitude, longitude, " +
		"speed, heading, assignment_id, assignment_type, source, lead_vehicle_id, schedule_based) " +
		"values (:vehicle_id, :time, :time_processed, :latitude, :longitude, " +
		":speed, :heading, :assignment_id, :assignment_type, :source, :lead_vehicle_id, :schedule_based)"
	_, err := db.NamedExec(db.Rebind(statement), r)
	if err != nil {
		return fmt.Errorf("recording avl report for vehicle %s: %w", r.VehicleId, err)
	}
	return nil
}
