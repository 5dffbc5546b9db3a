// Package store defines the persistence contract used by the tracker and an
// in-memory implementation of it.
package store

import (
	"context"

	"bustracker/internal/model"
)

// Store persists routes, buses and trip sessions. Implementations report
// missing entities as model.NotFoundError, uniqueness violations as
// model.DuplicateError and backend failures as model.ConnectivityError.
type Store interface {
	// InsertRoute persists r and returns it with the store-assigned CreatedAt.
	InsertRoute(ctx context.Context, r model.Route) (model.Route, error)
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context) ([]model.Route, error)
	// ListRoutesByOwner lists an owner's routes, newest first when newestFirst
	// is set. The ordered form may fail on stores lacking the supporting index.
	ListRoutesByOwner(ctx context.Context, ownerID string, newestFirst bool) ([]model.Route, error)
	// DeleteRoute unbinds every bus bound to the route, cancels their active
	// sessions and deletes the route as one atomic unit. It returns the IDs of
	// the unbound buses.
	DeleteRoute(ctx context.Context, id string) ([]string, error)

	InsertBus(ctx context.Context, b model.Bus) (model.Bus, error)
	GetBus(ctx context.Context, id string) (model.Bus, error)
	ListBusesByOwner(ctx context.Context, ownerID string) ([]model.Bus, error)
	UpdateBus(ctx context.Context, b model.Bus) (model.Bus, error)

	// GetSession returns the session document of a bus, active or not.
	GetSession(ctx context.Context, busID string) (model.TripSession, error)
	ListActiveSessions(ctx context.Context) ([]model.TripSession, error)
	// SaveSession writes the session and the bus mirror together.
	SaveSession(ctx context.Context, s model.TripSession, b model.Bus) error
}

// CloneRoute returns a copy of r that shares no memory with it.
func CloneRoute(r model.Route) model.Route {
	r.Stops = append([]string(nil), r.Stops...)
	return r
}

// CloneSession returns a copy of s that shares no memory with it.
func CloneSession(s model.TripSession) model.TripSession {
	s.Stops = append([]string(nil), s.Stops...)
	progress := make(map[int]model.StopProgress, len(s.Progress))
	for i, p := range s.Progress {
		if p.ArrivedAt != nil {
			at := *p.ArrivedAt
			p.ArrivedAt = &at
		}
		progress[i] = p
	}
	s.Progress = progress
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		s.CompletedAt = &at
	}
	if s.EndedAt != nil {
		at := *s.EndedAt
		s.EndedAt = &at
	}
	return s
}
