package store

import (
	"context"
	"testing"
	"time"

	"bustracker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoutesAreCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	stops := []string{"A", "B"}

	r, err := m.InsertRoute(ctx, model.Route{ID: "r1", Name: "R", Stops: stops, OwnerID: "d1"})
	require.NoError(t, err)
	stops[0] = "mutated"
	r.Stops[1] = "mutated"

	got, err := m.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Stops)

	_, err = m.InsertRoute(ctx, model.Route{ID: "r1"})
	assert.True(t, model.IsDuplicate(err))
}

func TestMemoryCreatedAtIsStrictlyIncreasing(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	a, err := m.InsertRoute(ctx, model.Route{ID: "a", OwnerID: "d1"})
	require.NoError(t, err)
	b, err := m.InsertRoute(ctx, model.Route{ID: "b", OwnerID: "d1"})
	require.NoError(t, err)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))

	ordered, err := m.ListRoutesByOwner(ctx, "d1", true)
	require.NoError(t, err)
	assert.Equal(t, "b", ordered[0].ID)

	m.SetOrderedListing(false)
	_, err = m.ListRoutesByOwner(ctx, "d1", true)
	assert.ErrorIs(t, err, ErrOrderedListingUnavailable)
	unordered, err := m.ListRoutesByOwner(ctx, "d1", false)
	require.NoError(t, err)
	assert.Equal(t, "a", unordered[0].ID)
}

func TestMemoryBusNumberIsUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.InsertBus(ctx, model.Bus{ID: "b1", Number: "B1"})
	require.NoError(t, err)
	_, err = m.InsertBus(ctx, model.Bus{ID: "b2", Number: "B1"})
	var dup model.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "number", dup.Field)

	_, err = m.UpdateBus(ctx, model.Bus{ID: "ghost"})
	assert.True(t, model.IsNotFound(err))
}

func TestMemoryDeleteRoute(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.InsertRoute(ctx, model.Route{ID: "r1", Stops: []string{"A"}})
	require.NoError(t, err)
	bound, err := m.InsertBus(ctx, model.Bus{ID: "b1", Number: "B1", RouteID: "r1"})
	require.NoError(t, err)
	_, err = m.InsertBus(ctx, model.Bus{ID: "b2", Number: "B2"})
	require.NoError(t, err)

	bound.CurrentStop = "A"
	bound.SessionID = "b1"
	require.NoError(t, m.SaveSession(ctx, model.TripSession{ID: "b1", BusID: "b1", RouteID: "r1", IsActive: true, Status: model.SessionRunning}, bound))

	unbound, err := m.DeleteRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, unbound)

	b, err := m.GetBus(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, b.RouteID)
	assert.Empty(t, b.CurrentStop)
	assert.Empty(t, b.SessionID)

	s, err := m.GetSession(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Equal(t, model.SessionCancelled, s.Status)
	assert.NotNil(t, s.EndedAt)

	active, err := m.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = m.DeleteRoute(ctx, "r1")
	assert.True(t, model.IsNotFound(err))
}

func TestMemorySessionsAreCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, err := m.InsertBus(ctx, model.Bus{ID: "b1", Number: "B1"})
	require.NoError(t, err)

	s := model.TripSession{
		ID: "b1", BusID: "b1", Stops: []string{"A"}, IsActive: true,
		Progress: map[int]model.StopProgress{0: {StopName: "A", Status: model.StopStarted}},
	}
	require.NoError(t, m.SaveSession(ctx, s, b))
	s.Progress[0] = model.StopProgress{StopName: "changed"}

	got, err := m.GetSession(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Progress[0].StopName)

	err = m.SaveSession(ctx, model.TripSession{ID: "b9"}, model.Bus{ID: "b9"})
	assert.True(t, model.IsNotFound(err))
}
