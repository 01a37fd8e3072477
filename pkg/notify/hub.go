// Package notify fans session events out to subscribers.
//
// Each subscriber owns a bounded buffer. When it is full the oldest queued event
// is discarded to make room for the newest one, so a slow reader always sees the
// most recent state and never stalls the publisher or other subscribers.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type subscriber struct {
	mu     sync.Mutex
	ch     chan domain.Event
	closed bool
}

// deliver enqueues ev, evicting the oldest queued event when full.
// It reports how many events were dropped.
func (s *subscriber) deliver(ev domain.Event) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	for {
		select {
		case s.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
			// Reader drained the queue in between; retry the send.
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub implements ports.Notifier.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	closed bool

	buffer  int
	dropped atomic.Uint64
	onDrop  func(session string, n int)
	logger  *slog.Logger
}

// Option configures the Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOnDrop registers a callback invoked whenever events are evicted.
func WithOnDrop(fn func(session string, n int)) Option {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// WithLogger configures a logger for the Hub.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: DefaultBuffer,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe returns a channel of events for session. The channel is closed when
// cancel is called, ctx ends, the session closes, or the hub shuts down.
func (h *Hub) Subscribe(ctx context.Context, session string) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if _, ok := h.topics[session]; !ok {
		h.topics[session] = make(map[*subscriber]struct{})
	}
	h.topics[session][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.topics[session]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.topics, session)
				}
			}
			h.mu.Unlock()
			sub.close()
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	return sub.ch, func() {
		stop()
		cancel()
	}
}

// Publish delivers ev to every current subscriber of session without blocking.
func (h *Hub) Publish(session string, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[session] {
		if n := sub.deliver(ev); n > 0 {
			h.dropped.Add(uint64(n))
			h.logger.Warn("Subscriber buffer full, dropped oldest event", "session", session, "dropped", n)
			if h.onDrop != nil {
				h.onDrop(session, n)
			}
		}
	}
}

// CloseSession ends every subscription of session.
func (h *Hub) CloseSession(session string) {
	h.mu.Lock()
	subs := h.topics[session]
	delete(h.topics, session)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Subscribers returns the number of live subscriptions for session.
func (h *Hub) Subscribers(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[session])
}

// Dropped returns the total number of events evicted so far.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends all subscriptions. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]map[*subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.close()
		}
	}
}
