// Package events fans refresh events out to the real-time transports.
//
// The freshen client hooks publish into a Broker; subscribers such as the
// WebSocket adapter deliver each event to connected dashboards.
package events

import "time"

// EventType represents the type of refresh event.
type EventType string

// Event types.
const (
	// Module events (from client hooks).
	ModuleRefreshed EventType = "module.refreshed"
	ModuleFailed    EventType = "module.failed"
	ContentExpired  EventType = "content.expired"

	// Run events.
	RunCompleted EventType = "run.completed"

	// Client events (from transport layers).
	ClientConnected EventType = "client.connected"
)

// Event is one published event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
