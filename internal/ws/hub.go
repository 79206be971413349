package ws

import (
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub tracks which subscribers have joined which project scope and fans
// published payloads out to them. It holds bookkeeping only; access control
// happens at the REST boundary, not here.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[Subscriber]struct{}
	joined map[Subscriber]map[string]struct{}
	log    *slog.Logger
}

// NewHub creates an initialized Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		scopes: make(map[string]map[Subscriber]struct{}),
		joined: make(map[Subscriber]map[string]struct{}),
		log:    logger,
	}
}

// Join subscribes the client to a project scope. Joining a scope already
// joined is a no-op.
func (h *Hub) Join(projectID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.scopes[projectID]; !ok {
		h.scopes[projectID] = make(map[Subscriber]struct{})
	}
	h.scopes[projectID][sub] = struct{}{}
	if _, ok := h.joined[sub]; !ok {
		h.joined[sub] = make(map[string]struct{})
	}
	h.joined[sub][projectID] = struct{}{}
}

// Leave unsubscribes the client from a scope. Leaving a scope not joined is
// a no-op.
func (h *Hub) Leave(projectID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(projectID, sub)
}

// LeaveAll removes the client from every scope it joined. Called on
// connection teardown so no subscription outlives its session.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for projectID := range h.joined[sub] {
		h.removeLocked(projectID, sub)
	}
}

// SubscriberCount reports how many clients are joined to a scope.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[projectID])
}

// Publish delivers payload once to every subscriber in the scope at the
// moment of publish. A subscriber whose send fails is evicted from all
// scopes and closed; it never fails the publish.
func (h *Hub) Publish(projectID string, payload []byte) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.scopes[projectID]))
	for sub := range h.scopes[projectID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var dead []Subscriber
	for _, sub := range subs {
		if err := sub.Send(payload); err != nil {
			if h.log != nil {
				h.log.Warn("dropping unreachable subscriber", "project_id", projectID, "error", err)
			}
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.LeaveAll(sub)
		sub.Close()
	}
}

func (h *Hub) removeLocked(projectID string, sub Subscriber) {
	if subs, ok := h.scopes[projectID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.scopes, projectID)
		}
	}
	if scopes, ok := h.joined[sub]; ok {
		delete(scopes, projectID)
		if len(scopes) == 0 {
			delete(h.joined, sub)
		}
	}
}
