package tracker

import (
	"context"
	"log"
	"sync"

	"bustracker/internal/metrics"
	"bustracker/internal/model"
	"bustracker/internal/pubsub"
)

// Watch is a live subscription handle. Every emission carries a full snapshot
// that replaces the previous one.
type Watch struct {
	cancel  context.CancelFunc
	onClose func()

	mu     sync.Mutex
	subs   []pubsub.Subscription
	closed bool
}

// Close stops further emissions and releases the subscriptions. It is safe to
// call more than once.
func (w *Watch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	w.cancel()
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			log.Printf("unsubscribe: %v", err)
		}
	}
	if w.onClose != nil {
		w.onClose()
	}
}

// startWatch subscribes to subjects, emits an initial snapshot and then a
// fresh snapshot after every event. The watch ends when ctx is cancelled or
// Close is called.
func startWatch[T any](ctx context.Context, broker pubsub.Broker, m *metrics.Collector, kind string, subjects []string,
	load func(context.Context) (T, error), emit func(T, error)) (*Watch, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{cancel: cancel}

	var emitMu sync.Mutex
	refresh := func() {
		emitMu.Lock()
		defer emitMu.Unlock()
		if wctx.Err() != nil {
			return
		}
		v, err := load(wctx)
		if wctx.Err() != nil {
			return
		}
		emit(v, err)
	}

	for _, subject := range subjects {
		sub, err := broker.Subscribe(subject, func(string, []byte) { refresh() })
		if err != nil {
			w.Close()
			return nil, model.ConnectivityError{Op: "subscribe " + subject, Err: err}
		}
		w.mu.Lock()
		w.subs = append(w.subs, sub)
		w.mu.Unlock()
	}

	if m != nil {
		m.ActiveWatches.WithLabelValues(kind).Inc()
		w.onClose = func() { m.ActiveWatches.WithLabelValues(kind).Dec() }
	}

	// Subscribed first so that no change between the initial load and the
	// subscription is lost.
	refresh()

	go func() {
		<-wctx.Done()
		w.Close()
	}()
	return w, nil
}
