package tracker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"bustracker/internal/model"

	"github.com/google/uuid"
)

// Catalog owns the routes drivers define.
type Catalog struct {
	*core
}

func (c *Catalog) CreateRoute(ctx context.Context, ownerID, name string, stops []string) (model.Route, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return model.Route{}, model.ValidationError{Field: "ownerId", Msg: "is required"}
	}
	if name == "" {
		return model.Route{}, model.ValidationError{Field: "name", Msg: "is required"}
	}
	if len(stops) == 0 {
		return model.Route{}, model.ValidationError{Field: "stops", Msg: "at least one stop is required"}
	}
	clean := make([]string, len(stops))
	for i, s := range stops {
		s = strings.TrimSpace(s)
		if s == "" {
			return model.Route{}, model.ValidationError{Field: fmt.Sprintf("stops[%d]", i), Msg: "is blank"}
		}
		clean[i] = s
	}

	r, err := c.store.InsertRoute(ctx, model.Route{
		ID:      uuid.NewString(),
		Name:    name,
		Stops:   clean,
		OwnerID: ownerID,
	})
	if err != nil {
		return model.Route{}, fmt.Errorf("create route: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RoutesCreated.Inc()
	}
	log.Printf("route %s %q created by %s (%d stops)", r.ID, r.Name, ownerID, len(r.Stops))
	c.events.RouteChanged(ownerID, r.ID)
	return r, nil
}

func (c *Catalog) GetRoute(ctx context.Context, id string) (model.Route, error) {
	return c.store.GetRoute(ctx, id)
}

// ListRoutesByOwner returns the owner's routes newest first. When the store
// cannot serve the ordered query it falls back to the unordered listing.
func (c *Catalog) ListRoutesByOwner(ctx context.Context, ownerID string) ([]model.Route, error) {
	routes, err := c.store.ListRoutesByOwner(ctx, ownerID, true)
	if err == nil {
		return routes, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	log.Printf("ordered route listing for %s failed, falling back to unordered: %v", ownerID, err)
	if c.metrics != nil {
		c.metrics.OrderedFallbacks.Inc()
	}
	routes, err = c.store.ListRoutesByOwner(ctx, ownerID, false)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// WatchRoutesByOwner emits the owner's route list now and after every change
// to it.
func (c *Catalog) WatchRoutesByOwner(ctx context.Context, ownerID string, fn func([]model.Route, error)) (*Watch, error) {
	subjects := []string{c.events.subject(kindRoutes, ownerID)}
	return startWatch(ctx, c.broker, c.metrics, "routes", subjects, func(ctx context.Context) ([]model.Route, error) {
		return c.ListRoutesByOwner(ctx, ownerID)
	}, fn)
}

// DeleteRoute removes a route. Buses bound to it are unbound, and their
// running sessions cancelled, in the same store transaction so no observer
// sees a bus pointing at a deleted route.
func (c *Catalog) DeleteRoute(ctx context.Context, routeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.store.GetRoute(ctx, routeID)
	if err != nil {
		return err
	}
	running, err := c.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	unbound, err := c.store.DeleteRoute(ctx, routeID)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RoutesDeleted.Inc()
	}
	for _, s := range running {
		if s.RouteID != routeID {
			continue
		}
		if c.metrics != nil {
			c.metrics.SessionsCancelled.Inc()
			c.metrics.ActiveSessions.Dec()
		}
		c.forgetLocation(ctx, s.BusID)
	}
	log.Printf("route %s deleted, %d bus(es) unbound", routeID, len(unbound))
	c.events.RouteChanged(r.OwnerID, routeID)
	for _, busID := range unbound {
		c.events.BusChanged(busID)
		c.events.SessionChanged(busID)
	}
	return nil
}

// Stops returns every distinct stop name across all routes, trimmed,
// lower-cased and sorted.
func (c *Catalog) Stops(ctx context.Context) ([]string, error) {
	routes, err := c.store.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	seen := make(map[string]struct{})
	for _, r := range routes {
		for _, s := range r.Stops {
			if n := normalize(s); n != "" {
				seen[n] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
