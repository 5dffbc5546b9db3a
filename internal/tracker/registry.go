package tracker

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bustracker/internal/model"

	"github.com/google/uuid"
)

// Registry owns the buses and their route binding.
type Registry struct {
	*core
}

// RegisterBus creates a bus. Numbers are unique system-wide.
func (r *Registry) RegisterBus(ctx context.Context, ownerID, number, busModel string, capacity int) (model.Bus, error) {
	ownerID = strings.TrimSpace(ownerID)
	number = strings.TrimSpace(number)
	busModel = strings.TrimSpace(busModel)
	switch {
	case ownerID == "":
		return model.Bus{}, model.ValidationError{Field: "ownerId", Msg: "is required"}
	case number == "":
		return model.Bus{}, model.ValidationError{Field: "number", Msg: "is required"}
	case busModel == "":
		return model.Bus{}, model.ValidationError{Field: "model", Msg: "is required"}
	case capacity <= 0:
		return model.Bus{}, model.ValidationError{Field: "capacity", Msg: "must be positive"}
	}

	b, err := r.store.InsertBus(ctx, model.Bus{
		ID:       uuid.NewString(),
		Number:   number,
		Model:    busModel,
		Capacity: capacity,
		OwnerID:  ownerID,
	})
	if err != nil {
		return model.Bus{}, fmt.Errorf("register bus: %w", err)
	}
	if r.metrics != nil {
		r.metrics.BusesRegistered.Inc()
	}
	log.Printf("bus %s (%s) registered by %s", b.ID, b.Number, ownerID)
	r.events.BusChanged(b.ID)
	return b, nil
}

func (r *Registry) GetBus(ctx context.Context, id string) (model.Bus, error) {
	return r.store.GetBus(ctx, id)
}

func (r *Registry) BusesByOwner(ctx context.Context, ownerID string) ([]model.Bus, error) {
	return r.store.ListBusesByOwner(ctx, ownerID)
}

// BindRoute assigns a route to a bus and clears its progress mirror. Binding
// the route a bus already has changes nothing.
func (r *Registry) BindRoute(ctx context.Context, busID, routeID string) (model.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.store.GetBus(ctx, busID)
	if err != nil {
		return model.Bus{}, err
	}
	if _, err := r.store.GetRoute(ctx, routeID); err != nil {
		return model.Bus{}, err
	}
	if b.RouteID == routeID {
		return b, nil
	}
	s, err := r.store.GetSession(ctx, busID)
	switch {
	case err == nil && s.IsActive:
		return model.Bus{}, model.PreconditionError{Msg: fmt.Sprintf("bus %s has a running trip; end it before changing route", busID)}
	case err != nil && !model.IsNotFound(err):
		return model.Bus{}, err
	}

	b.RouteID = routeID
	b.ClearProgress()
	b, err = r.store.UpdateBus(ctx, b)
	if err != nil {
		return model.Bus{}, fmt.Errorf("bind route: %w", err)
	}
	log.Printf("bus %s bound to route %s", busID, routeID)
	r.events.BusChanged(busID)
	return b, nil
}

// UpdateLocation records the last known position of a bus. Storage failures
// are logged and swallowed: positions are telemetry, not state.
func (r *Registry) UpdateLocation(ctx context.Context, busID string, lat, lon float64) (model.Location, error) {
	if _, err := r.store.GetBus(ctx, busID); err != nil {
		return model.Location{}, err
	}
	if r.locations == nil {
		return model.Location{BusID: busID, Lat: lat, Lon: lon}, nil
	}
	loc, err := r.locations.Put(ctx, busID, lat, lon)
	if err != nil {
		log.Printf("location update for bus %s dropped: %v", busID, err)
		if r.metrics != nil {
			r.metrics.LocationUpdates.WithLabelValues("error").Inc()
		}
		return model.Location{BusID: busID, Lat: lat, Lon: lon}, nil
	}
	if r.metrics != nil {
		r.metrics.LocationUpdates.WithLabelValues("ok").Inc()
	}
	return loc, nil
}

// Location returns the last known position of a bus, if it is still fresh.
func (r *Registry) Location(ctx context.Context, busID string) (model.Location, bool, error) {
	if r.locations == nil {
		return model.Location{}, false, nil
	}
	return r.locations.Get(ctx, busID)
}
