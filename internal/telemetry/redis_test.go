package telemetry

import (
	"context"
	"testing"
	"time"

	"bustracker/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	r := NewRedis(rdb, ttl)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return r, mr
}

func TestPutAndGet(t *testing.T) {
	r, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	put, err := r.Put(ctx, "bus-1", 19.0760, 72.8777)
	require.NoError(t, err)
	assert.True(t, put.Moving)
	assert.Equal(t, geohash.EncodeWithPrecision(19.0760, 72.8777, geohashPrecision), put.Geohash)

	got, ok, err := r.Get(ctx, "bus-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, put, got)
}

func TestGetUnknownBus(t *testing.T) {
	r, _ := newTestStore(t, time.Minute)
	_, ok, err := r.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocationExpires(t *testing.T) {
	r, mr := newTestStore(t, 30*time.Second)
	ctx := context.Background()
	_, err := r.Put(ctx, "bus-1", 1, 2)
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)
	_, ok, err := r.Get(ctx, "bus-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	r, _ := newTestStore(t, time.Minute)
	ctx := context.Background()
	_, err := r.Put(ctx, "bus-1", 1, 2)
	require.NoError(t, err)
	require.NoError(t, r.Clear(ctx, "bus-1"))
	_, ok, err := r.Get(ctx, "bus-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServerDownIsConnectivityError(t *testing.T) {
	r, mr := newTestStore(t, time.Minute)
	mr.Close()
	_, err := r.Put(context.Background(), "bus-1", 1, 2)
	require.Error(t, err)
	assert.True(t, model.IsConnectivity(err))
}

func TestPutKeepsOutOfRangeCoordinates(t *testing.T) {
	r, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	put, err := r.Put(ctx, "bus-1", 95.5, -200)
	require.NoError(t, err)
	assert.Equal(t, 95.5, put.Lat)
	assert.Equal(t, -200.0, put.Lon)
	assert.Len(t, put.Geohash, geohashPrecision)
	assert.Equal(t, cell(90, -180), put.Geohash)

	got, ok, err := r.Get(ctx, "bus-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, put, got)
}
