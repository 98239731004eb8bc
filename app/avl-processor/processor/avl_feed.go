package processor

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/foundation/httpclient"
)

// PipelineMetrics is the slice of instrumentation the feed machinery
// reports into. A nil value disables instrumentation.
type PipelineMetrics interface {
	FeedFetch(duration time.Duration, reports int, err error)
	ReportProcessed(err error)
}

// DecodeVehiclePositions turns a gtfs-realtime feed payload into reports.
// Entities without a vehicle position are skipped.
func DecodeVehiclePositions(payload []byte) ([]*avl.Report, error) {
	feed := gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("unmarshalling gtfs-realtime feed: %w", err)
	}
	headerTime := time.Time{}
	if feed.Header != nil && feed.Header.Timestamp != nil {
		headerTime = time.Unix(int64(feed.Header.GetTimestamp()), 0)
	}

	var reports []*avl.Report
	for _, entity := range feed.Entity {
		vehicle := entity.GetVehicle()
		if vehicle == nil || vehicle.Position == nil {
			continue
		}
		report := avl.Report{
			Source:    "gtfs-rt",
			Latitude:  float64(vehicle.Position.GetLatitude()),
			Longitude: float64(vehicle.Position.GetLongitude()),
		}
		if vehicle.Vehicle != nil {
			report.VehicleId = vehicle.Vehicle.GetId()
			if len(report.VehicleId) == 0 {
				report.VehicleId = vehicle.Vehicle.GetLabel()
			}
		}
		if vehicle.Timestamp != nil {
			report.Time = time.Unix(int64(vehicle.GetTimestamp()), 0)
		} else {
			report.Time = headerTime
		}
		if vehicle.Position.Speed != nil {
			speed := float64(vehicle.Position.GetSpeed())
			report.Speed = &speed
		}
		if vehicle.Position.Bearing != nil {
			heading := float64(vehicle.Position.GetBearing())
			report.Heading = &heading
		}
		if vehicle.Trip != nil && len(vehicle.Trip.GetTripId()) > 0 {
			report.AssignmentId = vehicle.Trip.GetTripId()
			report.AssignmentType = avl.AssignmentTrip
		}
		reports = append(reports, &report)
	}
	return reports, nil
}

// Dispatcher fans reports out to a fixed set of workers. A vehicle id
// always hashes to the same worker, so one vehicle's reports stay in order
// while different vehicles run in parallel.
type Dispatcher struct {
	log     *log.Logger
	p       *Processor
	metrics PipelineMetrics
	queues  []chan *avl.Report
	wg      sync.WaitGroup
}

// NewDispatcher starts workerCount workers feeding the processor.
func NewDispatcher(log *log.Logger, p *Processor, workerCount int, metrics PipelineMetrics) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	d := Dispatcher{
		log:     log,
		p:       p,
		metrics: metrics,
		queues:  make([]chan *avl.Report, workerCount),
	}
	for i := range d.queues {
		d.queues[i] = make(chan *avl.Report, 256)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return &d
}

func (d *Dispatcher) work(queue chan *avl.Report) {
	defer d.wg.Done()
	for report := range queue {
		err := d.p.ProcessReport(report)
		if err != nil {
			d.log.Printf("rejected avl report: %v", err)
		}
		if d.metrics != nil {
			d.metrics.ReportProcessed(err)
		}
	}
}

// Dispatch queues one report to its vehicle's worker.
func (d *Dispatcher) Dispatch(report *avl.Report) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(report.VehicleId))
	d.queues[h.Sum32()%uint32(len(d.queues))] <- report
}

// Shutdown drains the queues and waits for the workers to finish.
func (d *Dispatcher) Shutdown() {
	for _, queue := range d.queues {
		close(queue)
	}
	d.wg.Wait()
}

// RunFeedLoop polls a gtfs-realtime vehicle position feed until shutdown.
// The sleep between fetches is shortened by however long the previous cycle
// took.
func RunFeedLoop(log *log.Logger, dispatcher *Dispatcher, client *httpclient.Client,
	url string, every time.Duration, metrics PipelineMetrics, shutdownSignal chan bool) {

	log.Printf("polling vehicle positions from %s every %s", url, every)
	sleepChan := make(chan bool, 1)
	for {
		start := time.Now()
		fetchOnce(log, dispatcher, client, url, metrics)
		work := time.Since(start)

		sleep := every - work
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-shutdownSignal:
			log.Printf("exiting feed loop")
			return
		case <-sleepChan:
		case <-time.After(sleep):
		}
	}
}

func fetchOnce(log *log.Logger, dispatcher *Dispatcher, client *httpclient.Client,
	url string, metrics PipelineMetrics) {

	start := time.Now()
	payload, err := client.GetBytes(url)
	var reports []*avl.Report
	if err == nil {
		reports, err = DecodeVehiclePositions(payload)
	}
	if metrics != nil {
		metrics.FeedFetch(time.Since(start), len(reports), err)
	}
	if err != nil {
		log.Printf("feed fetch failed: %v", err)
		return
	}
	for _, report := range reports {
		dispatcher.Dispatch(report)
	}
}

// RunReportListener consumes json reports from a nats subject until
// shutdown. Subscribers share a queue group so several processor instances
// split the feed.
func RunReportListener(log *log.Logger, dispatcher *Dispatcher, conn *nats.Conn,
	subject, queueGroup string, shutdownSignal chan bool) error {

	messages := make(chan *nats.Msg, 512)
	subscription, err := conn.ChanQueueSubscribe(subject, queueGroup, messages)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	log.Printf("listening for avl reports on %s queue group %s", subject, queueGroup)

	for {
		select {
		case <-shutdownSignal:
			if err = subscription.Unsubscribe(); err != nil {
				log.Printf("error unsubscribing from %s: %v", subject, err)
			}
			return nil
		case message := <-messages:
			report := avl.Report{}
			if err = json.Unmarshal(message.Data, &report); err != nil {
				log.Printf("discarding malformed report on %s: %v", subject, err)
				continue
			}
			dispatcher.Dispatch(&report)
		}
	}
}
