// Package hub fans transcode progress out to whichever client is currently
// watching a task. It is grounded on the teacher's
// internal/http/websocket/hub.go (SocketHub) - the same
// register/deregister/send channel shape, narrowed from "broadcast to every
// connected client" down to "exactly one observer per task, latest
// connection wins".
package hub

import (
	"sync"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindProgress MessageKind = "progress"
	KindComplete MessageKind = "complete"
	KindFailed   MessageKind = "failed"
)

type Message struct {
	Kind    MessageKind
	Percent int
	Detail  string
}

func (m Message) Terminal() bool {
	return m.Kind == KindComplete || m.Kind == KindFailed
}

const observerBuffer = 8

type observer struct {
	ch chan Message
}

// Hub holds at most one live observer channel per task.
type Hub struct {
	mu        sync.Mutex
	observers map[uuid.UUID]*observer
}

func New() *Hub {
	return &Hub{observers: make(map[uuid.UUID]*observer)}
}

// Attach registers the caller as the sole observer for taskID, displacing
// and closing any previous observer's channel.
func (h *Hub) Attach(taskID uuid.UUID) <-chan Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.observers[taskID]; ok {
		close(existing.ch)
	}

	obs := &observer{ch: make(chan Message, observerBuffer)}
	h.observers[taskID] = obs
	return obs.ch
}

// Detach removes the current observer for taskID, if any, closing its
// channel. Safe to call with no observer attached.
func (h *Hub) Detach(taskID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.observers[taskID]; ok {
		close(existing.ch)
		delete(h.observers, taskID)
	}
}

// Publish delivers msg to the current observer for taskID, if any.
// Non-terminal messages are dropped when the observer's buffer is full - a
// slow client just misses intermediate progress ticks. Terminal messages
// (complete/failed) are delivered synchronously and the observer is
// detached immediately after, since nothing will ever follow them.
func (h *Hub) Publish(taskID uuid.UUID, msg Message) {
	h.mu.Lock()
	obs, ok := h.observers[taskID]
	if !ok {
		h.mu.Unlock()
		return
	}

	if msg.Terminal() {
		delete(h.observers, taskID)
		h.mu.Unlock()
		obs.ch <- msg
		close(obs.ch)
		return
	}

	h.mu.Unlock()
	select {
	case obs.ch <- msg:
	default:
	}
}
