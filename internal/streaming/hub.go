package streaming

import "context"

// StreamEvent is a real-time event emitted when a diagram changes.
type StreamEvent struct {
	ProjectID string `json:"project_id,omitempty"`
	DiagramID string `json:"diagram_id,omitempty"`
	EventType string `json:"event_type"`
	Revision  int64  `json:"revision,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// An event type ending in ".*" matches every type with that prefix.
type EventFilter struct {
	ProjectID  string   `json:"project_id,omitempty"`
	DiagramID  string   `json:"diagram_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time diagram events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
