package processor

import (
	"encoding/json"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/TransitTrack/transittrack/business/data/avl"
)

// NATS subjects results are published on.
const (
	VehicleEventSubject     = "vehicle-events"
	ArrivalDepartureSubject = "arrival-departures"
	VehicleSnapshotSubject  = "vehicle-snapshots"
)

// SinkMetrics counts what the publisher writes. A nil value disables
// instrumentation.
type SinkMetrics interface {
	EventRecorded(eventType string)
	ArrivalDepartureRecorded(kind string)
	Published(subject string, err error)
}

// ResultsPublisher is the standard EventSink: it writes durable records to
// postgres and publishes json copies over nats. Either side may be disabled
// by leaving it nil.
type ResultsPublisher struct {
	log     *log.Logger
	db      *sqlx.DB
	conn    *nats.Conn
	metrics SinkMetrics
}

// NewResultsPublisher builds a publisher. db and conn may each be nil.
func NewResultsPublisher(log *log.Logger, db *sqlx.DB, conn *nats.Conn, metrics SinkMetrics) *ResultsPublisher {
	return &ResultsPublisher{
		log:     log,
		db:      db,
		conn:    conn,
		metrics: metrics,
	}
}

func (rp *ResultsPublisher) VehicleEvent(event *avl.VehicleEvent) error {
	if rp.metrics != nil {
		rp.metrics.EventRecorded(event.EventType)
	}
	rp.publish(VehicleEventSubject, event)
	if rp.db == nil {
		return nil
	}
	return avl.RecordVehicleEvent(rp.db, event)
}

func (rp *ResultsPublisher) ArrivalDeparture(ad *avl.ArrivalDeparture) error {
	if rp.metrics != nil {
		rp.metrics.ArrivalDepartureRecorded(ad.Kind)
	}
	rp.publish(ArrivalDepartureSubject, ad)
	if rp.db == nil {
		return nil
	}
	return avl.RecordArrivalDeparture(rp.db, ad)
}

func (rp *ResultsPublisher) AvlReport(report *avl.Report) error {
	if rp.db == nil {
		return nil
	}
	return avl.RecordReport(rp.db, report)
}

func (rp *ResultsPublisher) VehicleSnapshot(snapshot *avl.VehicleSnapshot) error {
	rp.publish(VehicleSnapshotSubject, snapshot)
	if rp.db == nil {
		return nil
	}
	return avl.RecordVehicleSnapshot(rp.db, snapshot)
}

// publish sends a json copy over nats. Publish failures are logged but do
// not fail the record, the database copy is the durable one.
func (rp *ResultsPublisher) publish(subject string, payload interface{}) {
	if rp.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		rp.log.Printf("unable to marshal payload for %s: %v", subject, err)
		return
	}
	err = rp.conn.Publish(subject, data)
	if rp.metrics != nil {
		rp.metrics.Published(subject, err)
	}
	if err != nil {
		rp.log.Printf("unable to publish on %s: %v", subject, err)
	}
}

// LogOnlySink discards everything, for dry runs.
type LogOnlySink struct {
	Log *log.Logger
}

func (s *LogOnlySink) VehicleEvent(event *avl.VehicleEvent) error {
	s.Log.Printf("event: %s", event)
	return nil
}

func (s *LogOnlySink) ArrivalDeparture(ad *avl.ArrivalDeparture) error {
	s.Log.Printf("estimate: %s", ad)
	return nil
}

func (s *LogOnlySink) AvlReport(report *avl.Report) error {
	return nil
}

func (s *LogOnlySink) VehicleSnapshot(snapshot *avl.VehicleSnapshot) error {
	return nil
}

var _ EventSink = (*ResultsPublisher)(nil)
var _ EventSink = (*LogOnlySink)(nil)
