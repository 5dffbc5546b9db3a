package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"bustracker/internal/model"
	"bustracker/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// frame is one message on a live stream. Every snapshot replaces the previous
// one on the client.
type frame struct {
	Type  string `json:"type"` // snapshot | error
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// mailbox holds at most the newest frame. A slow client skips intermediate
// snapshots instead of stalling the watch.
type mailbox chan frame

func (m mailbox) put(f frame) {
	for {
		select {
		case m <- f:
			return
		default:
		}
		select {
		case <-m:
		default:
		}
	}
}

func snapshotFrame[T any](v T, err error) frame {
	if err != nil {
		msg := err.Error()
		if statusFor(err) >= http.StatusInternalServerError {
			log.Printf("live snapshot: %v", err)
			msg = "snapshot unavailable"
		}
		return frame{Type: "error", Error: msg}
	}
	return frame{Type: "snapshot", Data: v}
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.origins[origin]
		},
	}
}

func (h *Handlers) SessionLive(c *gin.Context) {
	id := c.Param("id")
	h.serveLive(c, func(ctx context.Context, box mailbox) (*tracker.Watch, error) {
		return h.t.Engine.WatchSession(ctx, id, func(v *tracker.SessionView, err error) {
			box.put(snapshotFrame(v, err))
		})
	})
}

func (h *Handlers) SearchLive(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		respondDomainError(c, model.ValidationError{Msg: "from and to are required"})
		return
	}
	h.serveLive(c, func(ctx context.Context, box mailbox) (*tracker.Watch, error) {
		return h.t.Matcher.WatchSearch(ctx, from, to, func(v []model.MatchedRoute, err error) {
			if v == nil {
				v = []model.MatchedRoute{}
			}
			box.put(snapshotFrame(v, err))
		})
	})
}

// serveLive upgrades the connection, starts the watch and pumps its snapshots
// to the client until either side goes away.
func (h *Handlers) serveLive(c *gin.Context, start func(context.Context, mailbox) (*tracker.Watch, error)) {
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	box := make(mailbox, 1)
	w, err := start(ctx, box)
	if err != nil {
		_ = conn.WriteJSON(snapshotFrame[any](nil, err))
		return
	}
	defer w.Close()

	// Clients only send control frames; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-box:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
