// Package tracker implements the trip tracking domain: the route catalog,
// the bus registry, the trip session state machine and the passenger route
// matcher. Every committed change is announced on the broker so live watches
// can re-read their snapshot.
package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"bustracker/internal/metrics"
	"bustracker/internal/model"
	"bustracker/internal/pubsub"
	"bustracker/internal/store"
)

// LocationStore keeps best-effort bus positions.
type LocationStore interface {
	Put(ctx context.Context, busID string, lat, lon float64) (model.Location, error)
	Get(ctx context.Context, busID string) (model.Location, bool, error)
	Clear(ctx context.Context, busID string) error
}

type core struct {
	store     store.Store
	broker    pubsub.Broker
	events    *Events
	locations LocationStore
	metrics   *metrics.Collector
	now       func() time.Time

	// mu serialises mutations across components so that a read-check-write
	// sequence never interleaves with another one.
	mu sync.Mutex
}

type Tracker struct {
	Catalog  *Catalog
	Registry *Registry
	Engine   *Engine
	Matcher  *Matcher
}

// New wires the components over one store and broker. locations and m may be
// nil.
func New(st store.Store, broker pubsub.Broker, subjectPrefix string, locations LocationStore, m *metrics.Collector) *Tracker {
	c := &core{
		store:     st,
		broker:    broker,
		events:    NewEvents(broker, subjectPrefix),
		locations: locations,
		metrics:   m,
		now:       time.Now,
	}
	catalog := &Catalog{core: c}
	return &Tracker{
		Catalog:  catalog,
		Registry: &Registry{core: c},
		Engine:   &Engine{core: c},
		Matcher:  &Matcher{core: c, catalog: catalog},
	}
}

func (c *core) timestamp() time.Time {
	return c.now().UTC()
}

// forgetLocation drops the last known position of a bus whose trip ended.
func (c *core) forgetLocation(ctx context.Context, busID string) {
	if c.locations == nil {
		return
	}
	if err := c.locations.Clear(ctx, busID); err != nil {
		log.Printf("clear location of bus %s: %v", busID, err)
	}
}
