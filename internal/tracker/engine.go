package tracker

import (
	"context"
	"fmt"
	"log"

	"bustracker/internal/model"
)

// Engine runs the trip session state machine:
//
//	NOT_STARTED -> RUNNING -> COMPLETED | CANCELLED
//
// A session is keyed by its bus, so a bus has at most one session document
// and at most one running trip.
type Engine struct {
	*core
}

// StartSession begins a trip of busID along routeID, which must be the route
// the bus is bound to.
func (e *Engine) StartSession(ctx context.Context, busID, routeID string) (model.TripSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.store.GetBus(ctx, busID)
	if model.IsNotFound(err) {
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("bus %s does not exist", busID)}
	}
	if err != nil {
		return model.TripSession{}, err
	}
	if b.RouteID == "" {
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("bus %s has no route assigned", busID)}
	}
	if b.RouteID != routeID {
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("bus %s is bound to route %s, not %s", busID, b.RouteID, routeID)}
	}
	r, err := e.store.GetRoute(ctx, routeID)
	if model.IsNotFound(err) {
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("route %s does not exist", routeID)}
	}
	if err != nil {
		return model.TripSession{}, err
	}
	if len(r.Stops) == 0 {
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("route %s has no stops", routeID)}
	}
	existing, err := e.store.GetSession(ctx, busID)
	switch {
	case err == nil && existing.IsActive:
		return model.TripSession{}, model.PreconditionError{Msg: fmt.Sprintf("bus %s already has a running trip", busID)}
	case err != nil && !model.IsNotFound(err):
		return model.TripSession{}, err
	}

	now := e.timestamp()
	s := model.TripSession{
		ID:               busID,
		BusID:            busID,
		RouteID:          r.ID,
		RouteName:        r.Name,
		DriverID:         b.OwnerID,
		Stops:            append([]string(nil), r.Stops...),
		CurrentStopIndex: 0,
		Progress: map[int]model.StopProgress{
			0: {StopName: r.Stops[0], Status: model.StopStarted, StartedAt: now},
		},
		IsActive:  true,
		Status:    model.SessionRunning,
		StartTime: now,
	}
	b.CurrentStop = r.Stops[0]
	b.SessionID = s.ID

	if err := e.store.SaveSession(ctx, s, b); err != nil {
		return model.TripSession{}, fmt.Errorf("start session: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SessionsStarted.Inc()
		e.metrics.ActiveSessions.Inc()
	}
	log.Printf("session %s started on route %s (%d stops)", s.ID, r.ID, len(s.Stops))
	e.announce(busID)
	return s, nil
}

// MarkArrival records arrival at the current stop. Arriving at the final stop
// completes the session.
func (e *Engine) MarkArrival(ctx context.Context, sessionID string) (model.TripSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, b, err := e.loadActive(ctx, sessionID)
	if err != nil {
		return model.TripSession{}, err
	}

	now := e.timestamp()
	cur := s.Progress[s.CurrentStopIndex]
	if cur.StopName == "" {
		cur = model.StopProgress{StopName: s.Stops[s.CurrentStopIndex], StartedAt: now}
	}
	cur.Status = model.StopCompleted
	cur.ArrivedAt = &now
	s.Progress[s.CurrentStopIndex] = cur
	arrivedAt := cur.StopName

	next := s.CurrentStopIndex + 1
	completed := next >= len(s.Stops)
	if completed {
		s.IsActive = false
		s.Status = model.SessionCompleted
		s.CompletedAt = &now
		b.ClearProgress()
	} else {
		s.CurrentStopIndex = next
		s.Progress[next] = model.StopProgress{StopName: s.Stops[next], Status: model.StopCurrent, StartedAt: now}
		b.CurrentStop = s.Stops[next]
	}

	if err := e.store.SaveSession(ctx, s, b); err != nil {
		return model.TripSession{}, fmt.Errorf("mark arrival: %w", err)
	}
	if e.metrics != nil {
		e.metrics.Arrivals.Inc()
		if completed {
			e.metrics.SessionsCompleted.Inc()
			e.metrics.ActiveSessions.Dec()
		}
	}
	if completed {
		log.Printf("session %s completed at %q", s.ID, arrivedAt)
		e.forgetLocation(ctx, s.BusID)
	} else {
		log.Printf("session %s arrived at %q, next %q", s.ID, arrivedAt, s.Stops[next])
	}
	e.announce(s.BusID)
	return s, nil
}

// EndSession cancels a running session. confirmed must be set by the caller
// to acknowledge the destructive action.
func (e *Engine) EndSession(ctx context.Context, sessionID string, confirmed bool) (model.TripSession, error) {
	if !confirmed {
		return model.TripSession{}, model.PreconditionError{Msg: "ending a trip must be confirmed"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, b, err := e.loadActive(ctx, sessionID)
	if err != nil {
		return model.TripSession{}, err
	}
	now := e.timestamp()
	s.IsActive = false
	s.Status = model.SessionCancelled
	s.EndedAt = &now
	b.ClearProgress()

	if err := e.store.SaveSession(ctx, s, b); err != nil {
		return model.TripSession{}, fmt.Errorf("end session: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SessionsCancelled.Inc()
		e.metrics.ActiveSessions.Dec()
	}
	log.Printf("session %s cancelled at stop %d/%d", s.ID, s.CurrentStopIndex+1, len(s.Stops))
	e.forgetLocation(ctx, s.BusID)
	e.announce(s.BusID)
	return s, nil
}

func (e *Engine) loadActive(ctx context.Context, sessionID string) (model.TripSession, model.Bus, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.TripSession{}, model.Bus{}, err
	}
	if !s.IsActive {
		return model.TripSession{}, model.Bus{}, model.InvalidStateError{SessionID: s.ID, State: s.Status}
	}
	if s.CurrentStopIndex < 0 || s.CurrentStopIndex >= len(s.Stops) {
		return model.TripSession{}, model.Bus{}, fmt.Errorf("session %s: stop index %d out of range", s.ID, s.CurrentStopIndex)
	}
	if s.Progress == nil {
		s.Progress = make(map[int]model.StopProgress)
	}
	b, err := e.store.GetBus(ctx, s.BusID)
	if err != nil {
		return model.TripSession{}, model.Bus{}, err
	}
	return s, b, nil
}

func (e *Engine) announce(busID string) {
	e.events.SessionChanged(busID)
	e.events.BusChanged(busID)
}

// Session returns the session document, whatever its state.
func (e *Engine) Session(ctx context.Context, sessionID string) (model.TripSession, error) {
	return e.store.GetSession(ctx, sessionID)
}

// ActiveSession returns the running session of a bus. ok is false when the
// bus has none.
func (e *Engine) ActiveSession(ctx context.Context, busID string) (s model.TripSession, ok bool, err error) {
	s, err = e.store.GetSession(ctx, busID)
	if model.IsNotFound(err) {
		return model.TripSession{}, false, nil
	}
	if err != nil {
		return model.TripSession{}, false, err
	}
	if !s.IsActive {
		return model.TripSession{}, false, nil
	}
	return s, true, nil
}

// WatchActiveSession emits the running session of a bus, or nil when there
// is none, now and after every change.
func (e *Engine) WatchActiveSession(ctx context.Context, busID string, fn func(*model.TripSession, error)) (*Watch, error) {
	subjects := []string{e.events.subject(kindSessions, busID)}
	return startWatch(ctx, e.broker, e.metrics, "session", subjects, func(ctx context.Context) (*model.TripSession, error) {
		s, ok, err := e.ActiveSession(ctx, busID)
		if err != nil || !ok {
			return nil, err
		}
		return &s, nil
	}, fn)
}

// SessionView is a session joined with the display details of its bus.
type SessionView struct {
	Session model.TripSession `json:"session"`
	Bus     model.Bus         `json:"bus"`
}

// View returns the session with its bus details.
func (e *Engine) View(ctx context.Context, sessionID string) (SessionView, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	b, err := e.store.GetBus(ctx, s.BusID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{Session: s, Bus: b}, nil
}

// WatchSession emits the detail view of a session whatever its state, or nil
// once it no longer exists. Used by the passenger live page.
func (e *Engine) WatchSession(ctx context.Context, sessionID string, fn func(*SessionView, error)) (*Watch, error) {
	subjects := []string{
		e.events.subject(kindSessions, sessionID),
		e.events.subject(kindBuses, sessionID),
	}
	return startWatch(ctx, e.broker, e.metrics, "session", subjects, func(ctx context.Context) (*SessionView, error) {
		v, err := e.View(ctx, sessionID)
		if model.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &v, nil
	}, fn)
}
