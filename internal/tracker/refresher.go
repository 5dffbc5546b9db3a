package tracker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Refresher periodically recounts running sessions from the store. The
// engine only sees its own transitions, so without it the gauge drifts
// across restarts and between instances sharing a database.
type Refresher struct {
	core     *core
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartRefresher launches the background loop. It refreshes once
// immediately and then every interval until Stop or parent is cancelled.
func (t *Tracker) StartRefresher(parent context.Context, interval time.Duration) *Refresher {
	r := &Refresher{core: t.Engine.core, interval: interval}
	if interval <= 0 {
		return r
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.RefreshActive(ctx); err != nil {
			log.Printf("refresh active sessions error: %v", err)
		}
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RefreshActive(ctx); err != nil {
					log.Printf("refresh active sessions error: %v", err)
				}
			}
		}
	}()
	return r
}

// RefreshActive counts running sessions and updates the gauge.
func (r *Refresher) RefreshActive(ctx context.Context) (int, error) {
	sessions, err := r.core.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	if r.core.metrics != nil {
		r.core.metrics.ActiveSessions.Set(float64(len(sessions)))
	}
	return len(sessions), nil
}

func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
