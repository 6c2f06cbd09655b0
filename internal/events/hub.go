// Package events fans committed task changes out to live subscribers.
package events

import (
	"log/slog"
	"sync"

	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/task"
)

// Subscription is one subscriber's view of the feed. C only carries
// events the subscriber's actor may read.
type Subscription struct {
	C <-chan task.Event

	ch    chan task.Event
	actor *authz.Actor
	hub   *Hub
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is an in-process broadcaster. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	bufferSize int
}

// NewHub creates a hub whose subscribers buffer bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs:       make(map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe registers actor on the feed.
func (h *Hub) Subscribe(actor *authz.Actor) *Subscription {
	ch := make(chan task.Event, h.bufferSize)
	s := &Subscription{C: ch, ch: ch, actor: actor, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}

// Publish implements task.Publisher. Subscribers who could read the
// task before a department move, but not after, get a task.moved event
// instead.
func (h *Hub) Publish(e task.Event) {
	ref := e.Task.Ref()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		switch {
		case authz.CanAccess(s.actor, ref):
			s.send(e)
		case e.Previous != nil && authz.CanAccess(s.actor, *e.Previous):
			s.send(e.Departed())
		}
	}
}

func (s *Subscription) send(e task.Event) {
	select {
	case s.ch <- e:
	default:
		slog.Warn("task event dropped for slow subscriber",
			"actor_id", s.actor.ID,
			"type", e.Type,
			"task_id", e.Task.ID,
		)
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
