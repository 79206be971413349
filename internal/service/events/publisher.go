// Package events turns mutation results into realtime payloads.
package events

import (
	"encoding/json"
	"log/slog"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/ws"
)

// Publisher fans mutation events out to the event's project scope.
// Publishing is fire-and-forget: delivery problems are logged per
// connection and never surface to the originating mutation.
type Publisher struct {
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a Publisher over the hub.
func New(hub *ws.Hub, logger *slog.Logger) Publisher {
	return Publisher{hub: hub, logger: logger}
}

// Publish marshals the event as a {type, data} pair and hands it to every
// subscriber of the event's scope.
func (p Publisher) Publish(event domain.Event) {
	payload, err := Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event payload", "type", event.Type, "scope", event.Scope, "error", err)
		return
	}
	p.hub.Publish(event.Scope, payload)
}

// Hub exposes the underlying hub for connection wiring.
func (p Publisher) Hub() *ws.Hub {
	return p.hub
}

// Marshal formats an event for the wire.
func Marshal(event domain.Event) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": event.Type,
		"data": event.Data,
	})
}
