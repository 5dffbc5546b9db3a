// Package pubsub carries change notifications between writers and live
// watchers. Subjects follow NATS conventions: dot-separated tokens, with "*"
// matching one token and ">" matching the remainder.
package pubsub

import (
	"slices"
	"strings"
	"sync"
)

type Handler func(subject string, data []byte)

type Subscription interface {
	Unsubscribe() error
}

type Broker interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close()
}

// Subject joins tokens into a subject, sanitising each one.
func Subject(tokens ...string) string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if t == "*" || t == ">" {
			out[i] = t
			continue
		}
		out[i] = Token(t)
	}
	return strings.Join(out, ".")
}

// Token makes s safe to use as a single subject token.
func Token(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

// Match reports whether subject is matched by pattern.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// Memory is an in-process Broker. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Memory struct {
	mu     sync.Mutex
	subs   []*memorySub // live subscriptions in subscription order
	closed bool
}

type memorySub struct {
	b       *Memory
	pattern string
	h       Handler
}

func (s *memorySub) Unsubscribe() error {
	s.b.mu.Lock()
	s.b.subs = slices.DeleteFunc(s.b.subs, func(o *memorySub) bool { return o == s })
	s.b.mu.Unlock()
	return nil
}

func NewMemory() *Memory {
	return &Memory{}
}

func (b *Memory) Publish(subject string, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	var targets []*memorySub
	for _, s := range b.subs {
		if Match(s.pattern, subject) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.h(subject, data)
	}
	return nil
}

func (b *Memory) Subscribe(subject string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySub{b: b, pattern: subject, h: h}
	b.subs = append(b.subs, s)
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (b *Memory) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Memory) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
}
