package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bustracker/internal/api"
	"bustracker/internal/config"
	"bustracker/internal/db"
	"bustracker/internal/metrics"
	"bustracker/internal/pubsub"
	"bustracker/internal/store"
	"bustracker/internal/telemetry"
	"bustracker/internal/tracker"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv, "metrics")
	}

	// Storage
	var st store.Store
	switch cfg.Store {
	case config.StoreMemory:
		log.Printf("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	default:
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error (%s): %v", db.Redact(cfg.DatabaseURL), err)
		}
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
		log.Printf("connected to %s", db.Redact(cfg.DatabaseURL))
		st = db.NewPostgres(sqlDB)
	}

	// Change events: NATS when configured, otherwise in process
	var broker pubsub.Broker
	if cfg.NATSURL != "" {
		nb, err := pubsub.NewNATS(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		broker = nb
	} else {
		broker = pubsub.NewMemory()
	}
	defer broker.Close()

	// Location telemetry is optional
	var locations tracker.LocationStore
	if cfg.RedisURL != "" {
		rdb, err := telemetry.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer rdb.Close()
		locations = telemetry.NewRedis(rdb, cfg.LocationTTL)
	} else {
		log.Printf("REDIS_URL not set; bus locations are not kept")
	}

	tr := tracker.New(st, broker, cfg.SubjectPrefix, locations, mcol)
	refresher := tr.StartRefresher(ctx, cfg.SessionSyncInterval)
	defer refresher.Stop()
	router := api.NewRouter(tr, api.Options{
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv, "http")
	log.Println("shutdown complete")
}

func shutdown(srv *http.Server, name string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("%s server shutdown: %v", name, err)
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) pubsub.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
