package tracker

import (
	"context"
	"testing"

	"bustracker/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRouteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		route   string
		stops   []string
		wantErr string
	}{
		{"no stops", "d1", "R", nil, "stops"},
		{"empty stops", "d1", "R", []string{}, "stops"},
		{"all blank stops", "d1", "R", []string{"  ", ""}, "stops[0]"},
		{"one blank stop", "d1", "R", []string{"A", " "}, "stops[1]"},
		{"blank name", "d1", "  ", []string{"A"}, "name"},
		{"blank owner", "", "R", []string{"A"}, "ownerId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Catalog.CreateRoute(ctx, tt.owner, tt.route, tt.stops)
			var ve model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantErr, ve.Field)
		})
	}

	routes, err := f.store.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestCreateRouteTrimsAndAllowsDuplicateNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.Catalog.CreateRoute(ctx, "d1", " Loop ", []string{" Depot", "Market "})
	require.NoError(t, err)
	b, err := f.Catalog.CreateRoute(ctx, "d1", "Loop", []string{"Depot"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "Loop", a.Name)
	assert.Equal(t, []string{"Depot", "Market"}, a.Stops)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RoutesCreated))
}

func TestListRoutesByOwnerNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.Catalog.CreateRoute(ctx, "d1", "first", []string{"A"})
	require.NoError(t, err)
	_, err = f.Catalog.CreateRoute(ctx, "d2", "foreign", []string{"A"})
	require.NoError(t, err)
	second, err := f.Catalog.CreateRoute(ctx, "d1", "second", []string{"A"})
	require.NoError(t, err)

	routes, err := f.Catalog.ListRoutesByOwner(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, second.ID, routes[0].ID)
	assert.Equal(t, first.ID, routes[1].ID)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.OrderedFallbacks))
}

func TestListRoutesByOwnerFallsBackToUnordered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.Catalog.CreateRoute(ctx, "d1", "first", []string{"A"})
	require.NoError(t, err)
	second, err := f.Catalog.CreateRoute(ctx, "d1", "second", []string{"A"})
	require.NoError(t, err)

	f.store.SetOrderedListing(false)
	routes, err := f.Catalog.ListRoutesByOwner(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{routes[0].ID, routes[1].ID})
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderedFallbacks))
}

func TestDeleteRouteUnbindsBusesAndCancelsTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, b := f.boundBus(t, "d1", "B1", "A", "B", "C")
	_, idle := f.boundBus(t, "d1", "B2", "X", "Y")
	s, err := f.Engine.StartSession(ctx, b.ID, r.ID)
	require.NoError(t, err)

	// Every bus event observed while deleting must already show the bus
	// detached from the route.
	var seen []model.Bus
	sub, err := f.broker.Subscribe(f.Catalog.events.all(kindBuses), func(string, []byte) {
		bus, err := f.store.GetBus(ctx, b.ID)
		require.NoError(t, err)
		seen = append(seen, bus)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, f.Catalog.DeleteRoute(ctx, r.ID))

	require.NotEmpty(t, seen)
	for _, bus := range seen {
		assert.Empty(t, bus.RouteID)
	}

	bus, err := f.Registry.GetBus(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, bus.RouteID)
	assert.Empty(t, bus.CurrentStop)
	assert.Empty(t, bus.SessionID)

	got, err := f.Engine.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, model.SessionCancelled, got.Status)

	other, err := f.Registry.GetBus(ctx, idle.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, other.RouteID)

	_, err = f.Catalog.GetRoute(ctx, r.ID)
	assert.True(t, model.IsNotFound(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionsCancelled))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestDeleteRouteForgetsLocationOfCancelledTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locs := &fakeLocations{}
	f.Registry.locations = locs
	r, running := f.boundBus(t, "d1", "B1", "A", "B")
	_, err := f.Engine.StartSession(ctx, running.ID, r.ID)
	require.NoError(t, err)
	idle, err := f.Registry.RegisterBus(ctx, "d1", "B2", "Volvo", 40)
	require.NoError(t, err)
	for _, id := range []string{running.ID, idle.ID} {
		_, err = f.Registry.UpdateLocation(ctx, id, 1, 2)
		require.NoError(t, err)
	}

	require.NoError(t, f.Catalog.DeleteRoute(ctx, r.ID))

	_, ok, err := f.Registry.Location(ctx, running.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = f.Registry.Location(ctx, idle.ID)
	require.NoError(t, err)
	assert.True(t, ok, "buses without a cancelled trip keep reporting")
}

func TestDeleteRouteNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.Catalog.DeleteRoute(context.Background(), "ghost")
	assert.True(t, model.IsNotFound(err), "got %v", err)
}

func TestStopsAreUniqueAndNormalised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.Catalog.CreateRoute(ctx, "d1", "R1", []string{"Depot", "Market"})
	require.NoError(t, err)
	_, err = f.Catalog.CreateRoute(ctx, "d2", "R2", []string{" market", "Airport"})
	require.NoError(t, err)

	stops, err := f.Catalog.Stops(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"airport", "depot", "market"}, stops)
}
