package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bustracker/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Postgres implements store.Store on top of database/sql.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func unavailable(op string, err error) error {
	return model.ConnectivityError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

const routeColumns = `id, name, stops, owner_id, created_at`

func scanRoute(row rowScanner) (model.Route, error) {
	var r model.Route
	var stops []byte
	if err := row.Scan(&r.ID, &r.Name, &stops, &r.OwnerID, &r.CreatedAt); err != nil {
		return model.Route{}, err
	}
	if err := json.Unmarshal(stops, &r.Stops); err != nil {
		return model.Route{}, fmt.Errorf("decode stops of route %s: %w", r.ID, err)
	}
	return r, nil
}

func (p *Postgres) InsertRoute(ctx context.Context, r model.Route) (model.Route, error) {
	stops, err := json.Marshal(r.Stops)
	if err != nil {
		return model.Route{}, fmt.Errorf("encode stops: %w", err)
	}
	q := `INSERT INTO routes (id, name, stops, owner_id) VALUES ($1, $2, $3, $4) RETURNING created_at`
	if err := p.db.QueryRowContext(ctx, q, r.ID, r.Name, string(stops), r.OwnerID).Scan(&r.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return model.Route{}, model.DuplicateError{Resource: "route", Field: "id", Value: r.ID}
		}
		return model.Route{}, unavailable("insert route", err)
	}
	return r, nil
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	q := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1`
	r, err := scanRoute(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, model.NotFoundError{Resource: "route", ID: id}
	}
	if err != nil {
		return model.Route{}, unavailable("get route", err)
	}
	return r, nil
}

func (p *Postgres) ListRoutes(ctx context.Context) ([]model.Route, error) {
	q := `SELECT ` + routeColumns + ` FROM routes ORDER BY created_at, id`
	return p.queryRoutes(ctx, "list routes", q)
}

func (p *Postgres) ListRoutesByOwner(ctx context.Context, ownerID string, newestFirst bool) ([]model.Route, error) {
	q := `SELECT ` + routeColumns + ` FROM routes WHERE owner_id = $1`
	if newestFirst {
		q += ` ORDER BY created_at DESC`
	}
	return p.queryRoutes(ctx, "list routes by owner", q, ownerID)
}

func (p *Postgres) queryRoutes(ctx context.Context, op, q string, args ...any) ([]model.Route, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()
	var out []model.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func (p *Postgres) DeleteRoute(ctx context.Context, id string) (unbound []string, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("delete route", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `UPDATE buses SET route_id = NULL, current_stop = NULL, session_id = NULL, updated_at = now()
WHERE route_id = $1 RETURNING id`, id)
	if err != nil {
		return nil, unavailable("unbind buses", err)
	}
	for rows.Next() {
		var busID string
		if err = rows.Scan(&busID); err != nil {
			rows.Close()
			return nil, unavailable("unbind buses", err)
		}
		unbound = append(unbound, busID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, unavailable("unbind buses", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE bus_route_sessions SET is_active = FALSE, status = $2, ended_at = now()
WHERE route_id = $1 AND is_active`, id, string(model.SessionCancelled)); err != nil {
		return nil, unavailable("cancel sessions", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return nil, unavailable("delete route", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("delete route", err)
	}
	if n == 0 {
		err = model.NotFoundError{Resource: "route", ID: id}
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, unavailable("delete route", err)
	}
	return unbound, nil
}

const busColumns = `id, number, model, capacity, owner_id, route_id, current_stop, session_id, created_at, updated_at`

func scanBus(row rowScanner) (model.Bus, error) {
	var b model.Bus
	var routeID, currentStop, sessionID sql.NullString
	if err := row.Scan(&b.ID, &b.Number, &b.Model, &b.Capacity, &b.OwnerID, &routeID, &currentStop, &sessionID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Bus{}, err
	}
	b.RouteID = routeID.String
	b.CurrentStop = currentStop.String
	b.SessionID = sessionID.String
	return b, nil
}

func (p *Postgres) InsertBus(ctx context.Context, b model.Bus) (model.Bus, error) {
	q := `INSERT INTO buses (id, number, model, capacity, owner_id, route_id, current_stop, session_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`
	err := p.db.QueryRowContext(ctx, q, b.ID, b.Number, b.Model, b.Capacity, b.OwnerID,
		nullable(b.RouteID), nullable(b.CurrentStop), nullable(b.SessionID)).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Bus{}, model.DuplicateError{Resource: "bus", Field: "number", Value: b.Number}
		}
		return model.Bus{}, unavailable("insert bus", err)
	}
	return b, nil
}

func (p *Postgres) GetBus(ctx context.Context, id string) (model.Bus, error) {
	b, err := scanBus(p.db.QueryRowContext(ctx, `SELECT `+busColumns+` FROM buses WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bus{}, model.NotFoundError{Resource: "bus", ID: id}
	}
	if err != nil {
		return model.Bus{}, unavailable("get bus", err)
	}
	return b, nil
}

func (p *Postgres) ListBusesByOwner(ctx context.Context, ownerID string) ([]model.Bus, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+busColumns+` FROM buses WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, unavailable("list buses", err)
	}
	defer rows.Close()
	var out []model.Bus
	for rows.Next() {
		b, err := scanBus(rows)
		if err != nil {
			return nil, unavailable("list buses", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list buses", err)
	}
	return out, nil
}

func (p *Postgres) UpdateBus(ctx context.Context, b model.Bus) (model.Bus, error) {
	q := `UPDATE buses SET route_id = $2, current_stop = $3, session_id = $4, updated_at = now()
WHERE id = $1 RETURNING updated_at`
	err := p.db.QueryRowContext(ctx, q, b.ID, nullable(b.RouteID), nullable(b.CurrentStop), nullable(b.SessionID)).Scan(&b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bus{}, model.NotFoundError{Resource: "bus", ID: b.ID}
	}
	if err != nil {
		return model.Bus{}, unavailable("update bus", err)
	}
	return b, nil
}

const sessionColumns = `bus_id, route_id, route_name, driver_id, stops, current_stop_index, progress,
is_active, status, start_time, completed_at, ended_at`

func scanSession(row rowScanner) (model.TripSession, error) {
	var s model.TripSession
	var stops, progress []byte
	var status string
	var completedAt, endedAt sql.NullTime
	if err := row.Scan(&s.BusID, &s.RouteID, &s.RouteName, &s.DriverID, &stops, &s.CurrentStopIndex, &progress,
		&s.IsActive, &status, &s.StartTime, &completedAt, &endedAt); err != nil {
		return model.TripSession{}, err
	}
	s.ID = s.BusID
	s.Status = model.SessionStatus(status)
	if err := json.Unmarshal(stops, &s.Stops); err != nil {
		return model.TripSession{}, fmt.Errorf("decode stops of session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(progress, &s.Progress); err != nil {
		return model.TripSession{}, fmt.Errorf("decode progress of session %s: %w", s.ID, err)
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return s, nil
}

func (p *Postgres) GetSession(ctx context.Context, busID string) (model.TripSession, error) {
	s, err := scanSession(p.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM bus_route_sessions WHERE bus_id = $1`, busID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TripSession{}, model.NotFoundError{Resource: "session", ID: busID}
	}
	if err != nil {
		return model.TripSession{}, unavailable("get session", err)
	}
	return s, nil
}

func (p *Postgres) ListActiveSessions(ctx context.Context) ([]model.TripSession, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM bus_route_sessions WHERE is_active ORDER BY start_time`)
	if err != nil {
		return nil, unavailable("list active sessions", err)
	}
	defer rows.Close()
	var out []model.TripSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, unavailable("list active sessions", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list active sessions", err)
	}
	return out, nil
}

func (p *Postgres) SaveSession(ctx context.Context, s model.TripSession, b model.Bus) (err error) {
	stops, err := json.Marshal(s.Stops)
	if err != nil {
		return fmt.Errorf("encode stops: %w", err)
	}
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("save session", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `INSERT INTO bus_route_sessions (bus_id, route_id, route_name, driver_id, stops, current_stop_index, progress,
    is_active, status, start_time, completed_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (bus_id) DO UPDATE SET
    route_id = EXCLUDED.route_id,
    route_name = EXCLUDED.route_name,
    driver_id = EXCLUDED.driver_id,
    stops = EXCLUDED.stops,
    current_stop_index = EXCLUDED.current_stop_index,
    progress = EXCLUDED.progress,
    is_active = EXCLUDED.is_active,
    status = EXCLUDED.status,
    start_time = EXCLUDED.start_time,
    completed_at = EXCLUDED.completed_at,
    ended_at = EXCLUDED.ended_at`
	if _, err = tx.ExecContext(ctx, q, s.BusID, s.RouteID, s.RouteName, s.DriverID, string(stops), s.CurrentStopIndex,
		string(progress), s.IsActive, string(s.Status), s.StartTime, s.CompletedAt, s.EndedAt); err != nil {
		return unavailable("upsert session", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE buses SET route_id = $2, current_stop = $3, session_id = $4, updated_at = now() WHERE id = $1`,
		b.ID, nullable(b.RouteID), nullable(b.CurrentStop), nullable(b.SessionID))
	if err != nil {
		return unavailable("update bus mirror", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update bus mirror", err)
	}
	if n == 0 {
		err = model.NotFoundError{Resource: "bus", ID: b.ID}
		return err
	}
	if err = tx.Commit(); err != nil {
		return unavailable("save session", err)
	}
	return nil
}
