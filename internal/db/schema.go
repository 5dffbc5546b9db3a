package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    stops      JSONB NOT NULL,
    owner_id   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS routes_owner_created_idx ON routes (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS buses (
    id           TEXT PRIMARY KEY,
    number       TEXT NOT NULL UNIQUE,
    model        TEXT NOT NULL,
    capacity     INTEGER NOT NULL,
    owner_id     TEXT NOT NULL,
    route_id     TEXT REFERENCES routes(id) ON DELETE SET NULL,
    current_stop TEXT,
    session_id   TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS buses_owner_idx ON buses (owner_id)`,
	`CREATE TABLE IF NOT EXISTS bus_route_sessions (
    bus_id             TEXT PRIMARY KEY REFERENCES buses(id) ON DELETE CASCADE,
    route_id           TEXT NOT NULL,
    route_name         TEXT NOT NULL,
    driver_id          TEXT NOT NULL,
    stops              JSONB NOT NULL,
    current_stop_index INTEGER NOT NULL,
    progress           JSONB NOT NULL,
    is_active          BOOLEAN NOT NULL,
    status             TEXT NOT NULL,
    start_time         TIMESTAMPTZ NOT NULL,
    completed_at       TIMESTAMPTZ,
    ended_at           TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS bus_route_sessions_active_idx ON bus_route_sessions (route_id, driver_id) WHERE is_active`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	log.Printf("schema up to date (%d statements)", len(schema))
	return nil
}
