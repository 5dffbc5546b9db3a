package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge
	ActiveWatches  *prometheus.GaugeVec // kind label: routes|session|search

	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled prometheus.Counter
	Arrivals          prometheus.Counter

	RoutesCreated    prometheus.Counter
	RoutesDeleted    prometheus.Counter
	BusesRegistered  prometheus.Counter
	LocationUpdates  *prometheus.CounterVec // result label: ok|error
	OrderedFallbacks prometheus.Counter

	Searches       *prometheus.CounterVec // result label: match|empty|error
	SearchDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_active_sessions",
			Help: "Number of trip sessions currently running.",
		}),
		ActiveWatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bustracker_active_watches",
			Help: "Number of open live watches.",
		}, []string{"kind"}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_sessions_started_total",
			Help: "Total trip sessions started.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_sessions_completed_total",
			Help: "Total trip sessions completed by reaching the final stop.",
		}),
		SessionsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_sessions_cancelled_total",
			Help: "Total trip sessions ended early by the driver.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_arrivals_total",
			Help: "Total stop arrivals marked.",
		}),
		RoutesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_routes_created_total",
			Help: "Total routes created.",
		}),
		RoutesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_routes_deleted_total",
			Help: "Total routes deleted.",
		}),
		BusesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_buses_registered_total",
			Help: "Total buses registered.",
		}),
		LocationUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_location_updates_total",
			Help: "Bus location updates by result.",
		}, []string{"result"}),
		OrderedFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_route_listing_fallbacks_total",
			Help: "Times the ordered route listing failed and the unordered listing was used.",
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_searches_total",
			Help: "Route searches by result.",
		}, []string{"result"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_search_duration_seconds",
			Help:    "Duration of route search including the live status join.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_publish_duration_seconds",
			Help:    "Duration to publish a change event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.ActiveSessions, c.ActiveWatches,
		c.SessionsStarted, c.SessionsCompleted, c.SessionsCancelled, c.Arrivals,
		c.RoutesCreated, c.RoutesDeleted, c.BusesRegistered, c.LocationUpdates, c.OrderedFallbacks,
		c.Searches, c.SearchDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
