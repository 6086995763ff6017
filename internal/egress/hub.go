package egress

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
)

// #region hub
// Hub fans session output out to subscribers. It implements engine.Sink:
// Publish never blocks, a subscriber whose buffer is full misses the
// control and its drop counter is incremented.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	buffer int
	every  uint64
	seq    atomic.Uint64
	logger *slog.Logger
}

// NewHub creates a hub with per-subscriber buffers of the given size that
// forwards every n-th frame (n <= 1 forwards all).
func NewHub(buffer, every int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if every < 1 {
		every = 1
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		every:  uint64(every),
		logger: logging.New("egress"),
	}
}

// Publish delivers o to every subscriber without blocking. Dropped frames
// are not forwarded.
func (h *Hub) Publish(o engine.Output) {
	if o.Dropped {
		return
	}
	seq := h.seq.Add(1)
	if seq%h.every != 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}
	c := ControlOf(seq, o)
	for _, s := range h.subs {
		select {
		case s.ch <- c:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. The returned subscription's
// channel is closed when it is cancelled or the hub closes.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, hub: h, ch: make(chan Control, h.buffer)}
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s.id] = s
	h.logger.Debug("subscriber added", "id", s.id, "subscribers", len(h.subs))
	return s
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
	if d := s.dropped.Load(); d > 0 {
		h.logger.Info("subscriber removed", "id", s.id, "dropped", d)
	}
}

// #endregion hub

// #region subscription
// Subscription is one consumer of a Hub.
type Subscription struct {
	id      uint64
	hub     *Hub
	ch      chan Control
	dropped atomic.Uint64
}

// C returns the control channel.
func (s *Subscription) C() <-chan Control { return s.ch }

// Dropped returns how many controls were skipped because the buffer was
// full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close cancels the subscription. It is safe to call more than once.
func (s *Subscription) Close() { s.hub.remove(s) }

// #endregion subscription
