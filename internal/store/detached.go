package store

import (
	"context"
	"time"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// Detached is a Store with no backing database. Every call fails with a
// STORE_ERROR; it lets stateless callers such as the CLI file commands share
// code with the server.
type Detached struct{}

var _ Store = Detached{}

func errDetached() error {
	return schema.NewError(schema.ErrCodeStore, "no database configured")
}

func (Detached) CreateProject(context.Context, *Project) error { return errDetached() }
func (Detached) GetProject(context.Context, string) (*Project, error) {
	return nil, errDetached()
}
func (Detached) ListProjects(context.Context) ([]*Project, error) { return nil, errDetached() }
func (Detached) DeleteProject(context.Context, string) error    { return errDetached() }

func (Detached) CreateDiagram(context.Context, *Diagram) error { return errDetached() }
func (Detached) GetDiagram(context.Context, string) (*Diagram, error) {
	return nil, errDetached()
}
func (Detached) UpdateDiagram(context.Context, string, DiagramUpdate) (int64, error) {
	return 0, errDetached()
}
func (Detached) ListDiagrams(context.Context, DiagramFilter) ([]*Diagram, error) {
	return nil, errDetached()
}
func (Detached) DeleteDiagram(context.Context, string) error { return errDetached() }

func (Detached) AppendEvent(context.Context, *Event) error { return errDetached() }
func (Detached) GetEvents(context.Context, string, int64) ([]*Event, error) {
	return nil, errDetached()
}
func (Detached) GetEventsByType(context.Context, string, EventFilter) ([]*Event, error) {
	return nil, errDetached()
}
func (Detached) PruneEvents(context.Context, time.Time) (int64, error) { return 0, errDetached() }

func (Detached) CreateRule(context.Context, *Rule) error { return errDetached() }
func (Detached) ListRules(context.Context, string) ([]*Rule, error) {
	return nil, errDetached()
}
func (Detached) DeleteRule(context.Context, string) error { return errDetached() }

func (Detached) Migrate(context.Context) error { return nil }
func (Detached) Vacuum(context.Context) error  { return nil }
func (Detached) Close() error                  { return nil }
