package tracker

import (
	"encoding/json"
	"log"
	"time"

	"bustracker/internal/pubsub"
)

// Event is the payload published after every committed change. Watchers only
// use it as a trigger and re-read the full state.
type Event struct {
	Kind string    `json:"kind"`
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
}

const (
	kindRoutes   = "routes"
	kindBuses    = "buses"
	kindSessions = "sessions"
)

// Events publishes change notifications under a common subject prefix.
type Events struct {
	broker pubsub.Broker
	prefix string
}

func NewEvents(broker pubsub.Broker, prefix string) *Events {
	if prefix == "" {
		prefix = "transit"
	}
	return &Events{broker: broker, prefix: prefix}
}

func (e *Events) subject(kind, id string) string {
	return pubsub.Subject(e.prefix, kind, id)
}

func (e *Events) all(kind string) string {
	return pubsub.Subject(e.prefix, kind, "*")
}

func (e *Events) publish(kind, key, id string) {
	b, err := json.Marshal(Event{Kind: kind, ID: id, At: time.Now().UTC()})
	if err != nil {
		log.Printf("encode %s event: %v", kind, err)
		return
	}
	if err := e.broker.Publish(e.subject(kind, key), b); err != nil {
		log.Printf("publish %s event for %s: %v", kind, id, err)
	}
}

func (e *Events) RouteChanged(ownerID, routeID string) { e.publish(kindRoutes, ownerID, routeID) }
func (e *Events) BusChanged(busID string)              { e.publish(kindBuses, busID, busID) }
func (e *Events) SessionChanged(busID string)          { e.publish(kindSessions, busID, busID) }
