package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bustracker/internal/model"
)

// ErrOrderedListingUnavailable is returned by Memory when ordered listing is
// switched off, mimicking a document store without the composite index.
var ErrOrderedListingUnavailable = errors.New("ordered listing requires an index")

// Memory is a Store kept in process memory. Routes and buses are listed in
// insertion order.
type Memory struct {
	mu       sync.RWMutex
	routes   map[string]model.Route
	buses    map[string]model.Bus
	sessions map[string]model.TripSession // busID -> session
	order    []string                     // route IDs in insertion order
	busOrder []string

	orderedListing bool
	now            func() time.Time
	seq            time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		routes:         make(map[string]model.Route),
		buses:          make(map[string]model.Bus),
		sessions:       make(map[string]model.TripSession),
		orderedListing: true,
		now:            time.Now,
	}
}

// SetOrderedListing toggles support for ListRoutesByOwner with newestFirst.
func (m *Memory) SetOrderedListing(enabled bool) {
	m.mu.Lock()
	m.orderedListing = enabled
	m.mu.Unlock()
}

// stamp returns a strictly increasing timestamp so that creation order is
// preserved even when the clock does not advance between calls.
func (m *Memory) stamp() time.Time {
	m.seq += time.Nanosecond
	return m.now().Add(m.seq)
}

func (m *Memory) InsertRoute(_ context.Context, r model.Route) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[r.ID]; ok {
		return model.Route{}, model.DuplicateError{Resource: "route", Field: "id", Value: r.ID}
	}
	r = CloneRoute(r)
	r.CreatedAt = m.stamp()
	m.routes[r.ID] = r
	m.order = append(m.order, r.ID)
	return CloneRoute(r), nil
}

func (m *Memory) GetRoute(_ context.Context, id string) (model.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, model.NotFoundError{Resource: "route", ID: id}
	}
	return CloneRoute(r), nil
}

func (m *Memory) ListRoutes(_ context.Context) ([]model.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Route, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, CloneRoute(m.routes[id]))
	}
	return out, nil
}

func (m *Memory) ListRoutesByOwner(_ context.Context, ownerID string, newestFirst bool) ([]model.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if newestFirst && !m.orderedListing {
		return nil, ErrOrderedListingUnavailable
	}
	var out []model.Route
	for _, id := range m.order {
		if r := m.routes[id]; r.OwnerID == ownerID {
			out = append(out, CloneRoute(r))
		}
	}
	if newestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out, nil
}

func (m *Memory) DeleteRoute(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[id]; !ok {
		return nil, model.NotFoundError{Resource: "route", ID: id}
	}
	now := m.stamp()
	var unbound []string
	for _, busID := range m.busOrder {
		b := m.buses[busID]
		if b.RouteID != id {
			continue
		}
		b.RouteID = ""
		b.ClearProgress()
		b.UpdatedAt = now
		m.buses[busID] = b
		unbound = append(unbound, busID)
		if s, ok := m.sessions[busID]; ok && s.IsActive {
			s.IsActive = false
			s.Status = model.SessionCancelled
			s.EndedAt = &now
			m.sessions[busID] = s
		}
	}
	delete(m.routes, id)
	for i, rid := range m.order {
		if rid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return unbound, nil
}

func (m *Memory) InsertBus(_ context.Context, b model.Bus) (model.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.buses {
		if existing.Number == b.Number {
			return model.Bus{}, model.DuplicateError{Resource: "bus", Field: "number", Value: b.Number}
		}
	}
	if _, ok := m.buses[b.ID]; ok {
		return model.Bus{}, model.DuplicateError{Resource: "bus", Field: "id", Value: b.ID}
	}
	b.CreatedAt = m.stamp()
	b.UpdatedAt = b.CreatedAt
	m.buses[b.ID] = b
	m.busOrder = append(m.busOrder, b.ID)
	return b, nil
}

func (m *Memory) GetBus(_ context.Context, id string) (model.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buses[id]
	if !ok {
		return model.Bus{}, model.NotFoundError{Resource: "bus", ID: id}
	}
	return b, nil
}

func (m *Memory) ListBusesByOwner(_ context.Context, ownerID string) ([]model.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Bus
	for _, id := range m.busOrder {
		if b := m.buses[id]; b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) UpdateBus(_ context.Context, b model.Bus) (model.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buses[b.ID]; !ok {
		return model.Bus{}, model.NotFoundError{Resource: "bus", ID: b.ID}
	}
	b.UpdatedAt = m.stamp()
	m.buses[b.ID] = b
	return b, nil
}

func (m *Memory) GetSession(_ context.Context, busID string) (model.TripSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[busID]
	if !ok {
		return model.TripSession{}, model.NotFoundError{Resource: "session", ID: busID}
	}
	return CloneSession(s), nil
}

func (m *Memory) ListActiveSessions(_ context.Context) ([]model.TripSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TripSession
	for _, id := range m.busOrder {
		if s, ok := m.sessions[id]; ok && s.IsActive {
			out = append(out, CloneSession(s))
		}
	}
	return out, nil
}

func (m *Memory) SaveSession(_ context.Context, s model.TripSession, b model.Bus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buses[b.ID]; !ok {
		return model.NotFoundError{Resource: "bus", ID: b.ID}
	}
	b.UpdatedAt = m.stamp()
	m.buses[b.ID] = b
	m.sessions[s.ID] = CloneSession(s)
	return nil
}
