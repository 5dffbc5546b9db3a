package tracker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"bustracker/internal/model"
)

// Matcher answers passenger searches: which routes go from one stop to
// another, and which of them have a bus running right now.
type Matcher struct {
	*core
	catalog *Catalog
}

// sessionKey joins a route to the session its owner is running on it.
type sessionKey struct {
	RouteID  string
	DriverID string
}

// FindRoutes returns the routes on which origin comes before destination, in
// store scan order. Stop names compare case-insensitively and only the first
// occurrence of each counts.
func (m *Matcher) FindRoutes(ctx context.Context, origin, destination string) ([]model.Route, error) {
	from, to := normalize(origin), normalize(destination)
	if from == "" {
		return nil, model.ValidationError{Field: "from", Msg: "is required"}
	}
	if to == "" {
		return nil, model.ValidationError{Field: "to", Msg: "is required"}
	}
	routes, err := m.store.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("find routes: %w", err)
	}
	var out []model.Route
	for _, r := range routes {
		if serves(r.Stops, from, to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// serves reports whether the first occurrence of from precedes the first
// occurrence of to. Both arguments are already normalised, so a stop never
// serves itself.
func serves(stops []string, from, to string) bool {
	fi := slices.IndexFunc(stops, func(s string) bool { return normalize(s) == from })
	ti := slices.IndexFunc(stops, func(s string) bool { return normalize(s) == to })
	return fi >= 0 && ti >= 0 && fi < ti
}

// AttachLiveStatus pairs every route with the running session of the route's
// owner on it, if any.
func (m *Matcher) AttachLiveStatus(ctx context.Context, routes []model.Route) ([]model.MatchedRoute, error) {
	out := make([]model.MatchedRoute, len(routes))
	for i, r := range routes {
		out[i] = model.MatchedRoute{Route: r}
	}
	if len(routes) == 0 {
		return out, nil
	}

	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("attach live status: %w", err)
	}
	live := make(map[sessionKey]model.TripSession, len(sessions))
	for _, s := range sessions {
		live[sessionKey{RouteID: s.RouteID, DriverID: s.DriverID}] = s
	}

	for i, r := range routes {
		s, ok := live[sessionKey{RouteID: r.ID, DriverID: r.OwnerID}]
		if !ok {
			continue
		}
		status := &model.LiveStatus{
			SessionID:        s.ID,
			BusID:            s.BusID,
			CurrentStop:      s.CurrentStop(),
			CurrentStopIndex: s.CurrentStopIndex,
			TotalStops:       len(s.Stops),
			StartTime:        s.StartTime,
			Status:           s.Status,
		}
		b, err := m.store.GetBus(ctx, s.BusID)
		switch {
		case err == nil:
			status.BusNumber = b.Number
			status.BusModel = b.Model
		case !model.IsNotFound(err):
			return nil, fmt.Errorf("attach live status: %w", err)
		}
		out[i].Live = status
	}
	return out, nil
}

// Search is FindRoutes followed by AttachLiveStatus.
func (m *Matcher) Search(ctx context.Context, origin, destination string) ([]model.MatchedRoute, error) {
	start := time.Now()
	routes, err := m.FindRoutes(ctx, origin, destination)
	var matched []model.MatchedRoute
	if err == nil {
		matched, err = m.AttachLiveStatus(ctx, routes)
	}
	if m.metrics != nil {
		m.metrics.SearchDuration.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			m.metrics.Searches.WithLabelValues("error").Inc()
		case len(matched) == 0:
			m.metrics.Searches.WithLabelValues("empty").Inc()
		default:
			m.metrics.Searches.WithLabelValues("match").Inc()
		}
	}
	return matched, err
}

// WatchSearch emits the search result now and again whenever a route, bus or
// session changes.
func (m *Matcher) WatchSearch(ctx context.Context, origin, destination string, fn func([]model.MatchedRoute, error)) (*Watch, error) {
	if _, err := m.FindRoutes(ctx, origin, destination); model.IsValidation(err) {
		return nil, err
	}
	subjects := []string{
		m.events.all(kindRoutes),
		m.events.all(kindBuses),
		m.events.all(kindSessions),
	}
	return startWatch(ctx, m.broker, m.metrics, "search", subjects, func(ctx context.Context) ([]model.MatchedRoute, error) {
		return m.Search(ctx, origin, destination)
	}, fn)
}

// SuggestStops returns known stop names starting with prefix, at most limit
// of them (limit <= 0 means no limit).
func (m *Matcher) SuggestStops(ctx context.Context, prefix string, limit int) ([]string, error) {
	p := normalize(prefix)
	if p == "" {
		return []string{}, nil
	}
	stops, err := m.catalog.Stops(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, s := range stops {
		if strings.HasPrefix(s, p) {
			out = append(out, s)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
