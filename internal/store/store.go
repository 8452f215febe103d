package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error

	// Diagrams
	CreateDiagram(ctx context.Context, d *Diagram) error
	GetDiagram(ctx context.Context, id string) (*Diagram, error)
	UpdateDiagram(ctx context.Context, id string, update DiagramUpdate) (int64, error)
	ListDiagrams(ctx context.Context, filter DiagramFilter) ([]*Diagram, error)
	DeleteDiagram(ctx context.Context, id string) error

	// Events (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, diagramID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Lint rules
	CreateRule(ctx context.Context, r *Rule) error
	ListRules(ctx context.Context, projectID string) ([]*Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
