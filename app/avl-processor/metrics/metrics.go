// Package metrics exposes prometheus counters for the avl pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so two processors in one test binary
// never collide on metric names.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches       *prometheus.CounterVec // result label: ok|error
	FeedFetchDuration prometheus.Histogram
	FeedReports       prometheus.Counter

	ReportsProcessed *prometheus.CounterVec // result label: ok|rejected

	VehicleEvents     *prometheus.CounterVec // type label
	ArrivalDepartures *prometheus.CounterVec // kind label: ARRIVAL|DEPARTURE
	MessagesPublished *prometheus.CounterVec // subject and result labels
}

// NewCollector builds and registers the pipeline metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avl_feed_fetches_total",
			Help: "Total vehicle position feed fetches.",
		}, []string{"result"}),
		FeedFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "avl_feed_fetch_duration_seconds",
			Help:    "Duration of vehicle position feed fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FeedReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avl_feed_reports_total",
			Help: "Total vehicle reports decoded from the feed.",
		}),
		ReportsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avl_reports_processed_total",
			Help: "Total vehicle reports run through the matcher.",
		}, []string{"result"}),
		VehicleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avl_vehicle_events_total",
			Help: "Total vehicle events recorded.",
		}, []string{"type"}),
		ArrivalDepartures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avl_arrival_departures_total",
			Help: "Total arrivals and departures recorded.",
		}, []string{"kind"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avl_messages_published_total",
			Help: "Total result messages published over nats.",
		}, []string{"subject", "result"}),
	}

	reg.MustRegister(
		c.FeedFetches, c.FeedFetchDuration, c.FeedReports,
		c.ReportsProcessed,
		c.VehicleEvents, c.ArrivalDepartures, c.MessagesPublished,
	)

	return c
}

// Handler serves the registry for a /metrics route.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// FeedFetch records one feed poll.
func (c *Collector) FeedFetch(duration time.Duration, reports int, err error) {
	c.FeedFetches.WithLabelValues(resultLabel(err)).Inc()
	c.FeedFetchDuration.Observe(duration.Seconds())
	if reports > 0 {
		c.FeedReports.Add(float64(reports))
	}
}

// ReportProcessed records one report run through the matcher.
func (c *Collector) ReportProcessed(err error) {
	if err != nil {
		c.ReportsProcessed.WithLabelValues("rejected").Inc()
		return
	}
	c.ReportsProcessed.WithLabelValues("ok").Inc()
}

// EventRecorded records one vehicle event by type.
func (c *Collector) EventRecorded(eventType string) {
	c.VehicleEvents.WithLabelValues(eventType).Inc()
}

// ArrivalDepartureRecorded records one arrival or departure by kind.
func (c *Collector) ArrivalDepartureRecorded(kind string) {
	c.ArrivalDepartures.WithLabelValues(kind).Inc()
}

// Published records one nats publish attempt by subject.
func (c *Collector) Published(subject string, err error) {
	c.MessagesPublished.WithLabelValues(subject, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
