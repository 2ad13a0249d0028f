// Package adapters connects event transports to the broker.
package adapters

import (
	"github.com/agentstation/freshen/internal/server/events"
	ws "github.com/agentstation/freshen/internal/server/websocket"
)

// WebSocketSubscriber forwards broker events to the WebSocket hub.
type WebSocketSubscriber struct {
	hub *ws.Hub
}

var _ events.Subscriber = (*WebSocketSubscriber)(nil)

// NewWebSocketSubscriber creates a new WebSocket subscriber.
func NewWebSocketSubscriber(hub *ws.Hub) *WebSocketSubscriber {
	return &WebSocketSubscriber{hub: hub}
}

// Send queues the event for every WebSocket client.
func (w *WebSocketSubscriber) Send(event events.Event) error {
	w.hub.Broadcast(ws.Message{
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Data:      event.Data,
	})
	return nil
}

// Close is a no-op; the hub's lifetime is owned by the server.
func (w *WebSocketSubscriber) Close() error {
	return nil
}
