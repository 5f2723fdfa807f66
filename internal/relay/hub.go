package relay

import (
	"log/slog"
	"sync"
)

// Session is one live bidirectional connection, identified by connection
// identity. Send must not block: it queues the message and reports whether
// it was accepted, so a session with a full outbound buffer is skipped
// rather than stalling a broadcast.
type Session interface {
	ID() string
	Send(msg Message) bool
}

// Hub tracks connected live sessions and fans messages out to them.
type Hub struct {
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger.With("component", "hub"),
		metrics:  metrics,
		sessions: make(map[string]Session),
	}
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s Session) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
	h.metrics.SessionConnected()
	h.logger.Debug("session registered", "session_id", s.ID())
}

// Unregister removes a session from the broadcast set.
func (h *Hub) Unregister(s Session) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.sessions[s.ID()]
	if ok {
		delete(h.sessions, s.ID())
	}
	h.mu.Unlock()
	if ok {
		h.metrics.SessionDisconnected()
		h.logger.Debug("session unregistered", "session_id", s.ID())
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish delivers msg to every registered session except exclude (pass nil
// to exclude nobody). Delivery is best-effort: a session that cannot accept
// the message right now is skipped silently and never fails the broadcast.
func (h *Hub) Publish(msg Message, exclude Session) {
	if h == nil {
		return
	}
	h.mu.RLock()
	targets := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if exclude != nil && s.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.Send(msg) {
			h.metrics.RecordSkippedDelivery()
			h.logger.Debug("session skipped, outbound buffer full",
				"session_id", s.ID(), "type", msg.Type)
		}
	}
	h.metrics.RecordBroadcast()
}
