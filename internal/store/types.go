package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// Project groups diagrams and lint rules.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Diagram is the persisted form of one use-case diagram: its PlantUML source
// and the graph the canvas works on.
type Diagram struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	Graph     schema.Graph    `json:"graph"`
	Issues    json.RawMessage `json:"issues,omitempty"`
	Revision  int64           `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DiagramUpdate holds the fields to change on a diagram. Nil fields are left
// untouched. ExpectedRevision, when non-zero, must match the stored revision.
type DiagramUpdate struct {
	Name             *string
	Source           *string
	Graph            *schema.Graph
	Issues           json.RawMessage
	ExpectedRevision int64

	// Event, when set, is called with the new revision. The returned event
	// is appended in the same transaction as the change.
	Event func(revision int64) (*Event, error)
}

// DiagramFilter narrows ListDiagrams.
type DiagramFilter struct {
	ProjectID string
	Limit     int
	Offset    int
}

// Event is an immutable entry in a diagram's history.
type Event struct {
	ID        int64           `json:"id"`
	DiagramID string          `json:"diagram_id"`
	ProjectID string          `json:"project_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Revision  int64           `json:"revision"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter narrows GetEventsByType.
type EventFilter struct {
	ProjectID string
	DiagramID string
	Since     *time.Time
	Limit     int
}

// Rule is a project lint rule. Expression is evaluated once per node by the
// named engine and must yield a boolean; false produces a finding.
type Rule struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Name       string    `json:"name"`
	Engine     string    `json:"engine"`
	Expression string    `json:"expression"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
