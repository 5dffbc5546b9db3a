package model

import "time"

type Route struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Stops     []string  `json:"stops"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Bus struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Model       string    `json:"model"`
	Capacity    int       `json:"capacity"`
	OwnerID     string    `json:"ownerId"`
	RouteID     string    `json:"routeId,omitempty"`     // "" when unbound
	CurrentStop string    `json:"currentStop,omitempty"` // mirror of the running session's stop
	SessionID   string    `json:"sessionId,omitempty"`   // linkage to the running session
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ClearProgress drops the stop mirror and session linkage.
func (b *Bus) ClearProgress() {
	b.CurrentStop = ""
	b.SessionID = ""
}

type StopStatus string

const (
	StopStarted   StopStatus = "started"
	StopCurrent   StopStatus = "current"
	StopCompleted StopStatus = "completed"
)

type StopProgress struct {
	StopName  string     `json:"stopName"`
	Status    StopStatus `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	ArrivedAt *time.Time `json:"arrivedAt,omitempty"`
}

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// TripSession is one run of a bus along its bound route. Its ID is the bus ID,
// so a bus never has more than one session document.
type TripSession struct {
	ID               string               `json:"id"`
	BusID            string               `json:"busId"`
	RouteID          string               `json:"routeId"`
	RouteName        string               `json:"routeName"`
	DriverID         string               `json:"driverId"`
	Stops            []string             `json:"stops"`
	CurrentStopIndex int                  `json:"currentStopIndex"`
	Progress         map[int]StopProgress `json:"progress"`
	IsActive         bool                 `json:"isActive"`
	Status           SessionStatus        `json:"status"`
	StartTime        time.Time            `json:"startTime"`
	CompletedAt      *time.Time           `json:"completedAt,omitempty"`
	EndedAt          *time.Time           `json:"endedAt,omitempty"`
}

// CurrentStop returns the stop the bus is heading to or waiting at, or "" once
// the session is over.
func (s TripSession) CurrentStop() string {
	if !s.IsActive || s.CurrentStopIndex < 0 || s.CurrentStopIndex >= len(s.Stops) {
		return ""
	}
	return s.Stops[s.CurrentStopIndex]
}

type Location struct {
	BusID     string    `json:"busId"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Geohash   string    `json:"geohash"`
	Moving    bool      `json:"isMoving"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LiveStatus is the passenger-facing summary of a running session.
type LiveStatus struct {
	SessionID        string        `json:"sessionId"`
	BusID            string        `json:"busId"`
	BusNumber        string        `json:"busNumber"`
	BusModel         string        `json:"busModel"`
	CurrentStop      string        `json:"currentStop"`
	CurrentStopIndex int           `json:"currentStopIndex"`
	TotalStops       int           `json:"totalStops"`
	StartTime        time.Time     `json:"startTime"`
	Status           SessionStatus `json:"status"`
}

type MatchedRoute struct {
	Route Route       `json:"route"`
	Live  *LiveStatus `json:"live,omitempty"`
}
