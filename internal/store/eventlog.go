package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// SourcePayload is the payload of diagram.created and diagram.source_changed.
type SourcePayload struct {
	Source   string `json:"source"`
	Revision int64  `json:"revision"`
}

// ReplaySources walks a diagram's history and returns the PlantUML source
// recorded at each revision. Pruning removes a prefix of the history, so the
// walk starts at the oldest surviving sequence; a gap after it is an error.
func (el *EventLog) ReplaySources(ctx context.Context, diagramID string) (map[int64]string, error) {
	events, err := el.store.GetEvents(ctx, diagramID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	sources := make(map[int64]string)
	for i, e := range events {
		expected := events[0].Sequence + int64(i)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in diagram %s: expected %d, got %d", diagramID, expected, e.Sequence)
		}

		switch e.Type {
		case schema.EventDiagramCreated, schema.EventDiagramSourceChanged:
			var p SourcePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"event %d of diagram %s: bad payload", e.Sequence, diagramID).WithCause(err)
			}
			rev := p.Revision
			if rev == 0 {
				rev = e.Revision
			}
			sources[rev] = p.Source
		}
	}
	return sources, nil
}
