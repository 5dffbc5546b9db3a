package tracker

import (
	"context"
	"testing"
	"time"

	"bustracker/internal/metrics"
	"bustracker/internal/model"
	"bustracker/internal/pubsub"
	"bustracker/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	*Tracker
	store   *store.Memory
	broker  *pubsub.Memory
	metrics *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	broker := pubsub.NewMemory()
	m := metrics.NewCollector()
	tr := New(st, broker, "test", nil, m)
	tr.Engine.now = func() time.Time { return t0 }
	t.Cleanup(broker.Close)
	return &fixture{Tracker: tr, store: st, broker: broker, metrics: m}
}

// boundBus creates a route and a bus owned by driver and binds them.
func (f *fixture) boundBus(t *testing.T, driver, number string, stops ...string) (model.Route, model.Bus) {
	t.Helper()
	ctx := context.Background()
	r, err := f.Catalog.CreateRoute(ctx, driver, "Route "+number, stops)
	require.NoError(t, err)
	b, err := f.Registry.RegisterBus(ctx, driver, number, "Volvo 7900", 40)
	require.NoError(t, err)
	b, err = f.Registry.BindRoute(ctx, b.ID, r.ID)
	require.NoError(t, err)
	return r, b
}

func TestEndToEndLoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.Catalog.CreateRoute(ctx, "driver-1", "Loop", []string{"Depot", "Market", "Station"})
	require.NoError(t, err)
	b, err := f.Registry.RegisterBus(ctx, "driver-1", "B1", "Volvo 7900", 40)
	require.NoError(t, err)
	_, err = f.Registry.BindRoute(ctx, b.ID, r.ID)
	require.NoError(t, err)

	s, err := f.Engine.StartSession(ctx, b.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStopIndex)
	assert.Equal(t, model.StopStarted, s.Progress[0].Status)
	assert.True(t, s.IsActive)
	assert.Equal(t, "Loop", s.RouteName)
	assert.Equal(t, "driver-1", s.DriverID)

	bus, err := f.Registry.GetBus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Depot", bus.CurrentStop)
	assert.Equal(t, s.ID, bus.SessionID)

	s, err = f.Engine.MarkArrival(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentStopIndex)
	assert.Equal(t, model.StopCompleted, s.Progress[0].Status)
	assert.Equal(t, model.StopCurrent, s.Progress[1].Status)

	s, err = f.Engine.MarkArrival(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStopIndex)
	assert.Equal(t, model.StopCompleted, s.Progress[1].Status)
	assert.Equal(t, model.StopCurrent, s.Progress[2].Status)

	bus, err = f.Registry.GetBus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Station", bus.CurrentStop)

	s, err = f.Engine.MarkArrival(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Equal(t, model.SessionCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Nil(t, s.EndedAt)
	assert.Equal(t, model.StopCompleted, s.Progress[2].Status)

	bus, err = f.Registry.GetBus(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, bus.SessionID)
	assert.Empty(t, bus.CurrentStop)
	assert.Equal(t, r.ID, bus.RouteID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionsCompleted))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Arrivals))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestNewWithoutMetrics(t *testing.T) {
	tr := New(store.NewMemory(), pubsub.NewMemory(), "", nil, nil)
	ctx := context.Background()

	r, err := tr.Catalog.CreateRoute(ctx, "d", "R", []string{"a", "b"})
	require.NoError(t, err)
	b, err := tr.Registry.RegisterBus(ctx, "d", "N1", "M", 10)
	require.NoError(t, err)
	_, err = tr.Registry.BindRoute(ctx, b.ID, r.ID)
	require.NoError(t, err)
	_, err = tr.Engine.StartSession(ctx, b.ID, r.ID)
	require.NoError(t, err)
	got, err := tr.Matcher.Search(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Live)
}
