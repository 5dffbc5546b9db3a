package tracker

import (
	"context"
	"testing"
	"time"

	"bustracker/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresherCountsSessionsStartedElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, b := f.boundBus(t, "d1", "B1", "A", "B")

	// Written straight to the store, as another instance would.
	require.NoError(t, f.store.SaveSession(ctx, model.TripSession{
		ID: b.ID, BusID: b.ID, RouteID: b.RouteID, Stops: []string{"A", "B"},
		IsActive: true, Status: model.SessionRunning,
	}, b))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))

	r := f.StartRefresher(ctx, time.Hour)
	defer r.Stop()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.ActiveSessions) == 1
	}, time.Second, 5*time.Millisecond)

	n, err := r.RefreshActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRefresherDisabled(t *testing.T) {
	f := newFixture(t)
	r := f.StartRefresher(context.Background(), 0)
	r.Stop()
}
