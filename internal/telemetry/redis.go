// Package telemetry keeps the last known position of each bus. Positions are
// best-effort: they expire after a TTL, and an expired position means the bus
// is no longer reporting.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"bustracker/internal/model"

	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"
)

const geohashPrecision = 7 // ~150m cells

// Upper bounds sit just inside the range; the encoder's interval is half-open.
var (
	maxLat = math.Nextafter(90, 0)
	maxLon = math.Nextafter(180, 0)
)

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, now: time.Now}
}

func key(busID string) string { return "bus:location:" + busID }

// cell returns the geohash of a position. Devices report raw GPS values, so
// coordinates outside the valid range are clamped for the cell only.
func cell(lat, lon float64) string {
	lat = math.Max(-90, math.Min(maxLat, lat))
	lon = math.Max(-180, math.Min(maxLon, lon))
	return geohash.EncodeWithPrecision(lat, lon, geohashPrecision)
}

// Put records the position of a bus and marks it as moving until the TTL
// lapses.
func (r *Redis) Put(ctx context.Context, busID string, lat, lon float64) (model.Location, error) {
	loc := model.Location{
		BusID:     busID,
		Lat:       lat,
		Lon:       lon,
		Geohash:   cell(lat, lon),
		Moving:    true,
		UpdatedAt: r.now().UTC(),
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return model.Location{}, err
	}
	if err := r.rdb.Set(ctx, key(busID), b, r.ttl).Err(); err != nil {
		return model.Location{}, model.ConnectivityError{Op: "store location", Err: err}
	}
	return loc, nil
}

// Get returns the last known position. ok is false when the bus has never
// reported or its last report expired.
func (r *Redis) Get(ctx context.Context, busID string) (loc model.Location, ok bool, err error) {
	b, err := r.rdb.Get(ctx, key(busID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Location{}, false, nil
	}
	if err != nil {
		return model.Location{}, false, model.ConnectivityError{Op: "load location", Err: err}
	}
	if err := json.Unmarshal(b, &loc); err != nil {
		return model.Location{}, false, fmt.Errorf("decode location of bus %s: %w", busID, err)
	}
	return loc, true, nil
}

// Clear drops the stored position, e.g. once a trip is over.
func (r *Redis) Clear(ctx context.Context, busID string) error {
	if err := r.rdb.Del(ctx, key(busID)).Err(); err != nil {
		return model.ConnectivityError{Op: "clear location", Err: err}
	}
	return nil
}
