// Package diagrams is the single entry point the HTTP API, the MCP server and
// the CLI use to parse, persist, edit, render, query and lint use-case
// diagrams. Every mutation is recorded in the event log and published on the
// event hub.
package diagrams

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/ucdiagram/internal/diagram"
	"github.com/rendis/ucdiagram/internal/editor"
	"github.com/rendis/ucdiagram/internal/expressions"
	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/plantuml"
	"github.com/rendis/ucdiagram/internal/store"
	"github.com/rendis/ucdiagram/internal/streaming"
	"github.com/rendis/ucdiagram/internal/validation"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// SourceReplayer rebuilds the source history of a diagram from its events.
type SourceReplayer interface {
	ReplaySources(ctx context.Context, diagramID string) (map[int64]string, error)
}

// Deps holds the collaborators of a Service. A nil Store gives a detached
// service that parses, renders, queries and lints graphs but fails every
// stored-diagram operation. The rest default to in-process implementations.
type Deps struct {
	Store           store.Store
	Replayer        SourceReplayer
	Hub             streaming.EventHub
	Validator       validation.Validator
	Engines         *expressions.Registry
	Logger          *slog.Logger
	MermaidASCIIBin string
}

// Service implements diagram operations on top of the store.
type Service struct {
	store     store.Store
	replayer  SourceReplayer
	hub       streaming.EventHub
	validator validation.Validator
	engines   *expressions.Registry
	linter    *lint.Linter
	logger    *slog.Logger
	ascii     *diagram.ASCIIRenderer
}

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		deps.Store = store.Detached{}
	}
	s := &Service{
		store:     deps.Store,
		replayer:  deps.Replayer,
		hub:       deps.Hub,
		validator: deps.Validator,
		engines:   deps.Engines,
		logger:    deps.Logger,
		ascii:     diagram.NewASCIIRenderer(deps.MermaidASCIIBin, diagram.DefaultBreakerConfig()),
	}
	if s.hub == nil {
		s.hub = streaming.NewMemoryHub()
	}
	if s.validator == nil {
		v, err := validation.NewGraphValidator()
		if err != nil {
			return nil, fmt.Errorf("diagrams: %w", err)
		}
		s.validator = v
	}
	if s.engines == nil {
		r, err := expressions.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("diagrams: %w", err)
		}
		s.engines = r
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.linter = lint.New(s.engines)
	return s, nil
}

// Hub returns the hub diagram events are published on.
func (s *Service) Hub() streaming.EventHub { return s.hub }

// ParseResult is the graph extracted from a text plus the skipped fragments.
type ParseResult struct {
	Graph  schema.Graph     `json:"graph"`
	Issues []plantuml.Issue `json:"issues,omitempty"`
}

// Parse extracts the graph from PlantUML text. It never fails.
func (s *Service) Parse(text string) ParseResult {
	res := plantuml.Parse(text)
	return ParseResult{Graph: res.Graph, Issues: res.Issues}
}

// --- Projects ---

// CreateProject stores a new project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "project name is required")
	}
	p := &store.Project{ID: uuid.NewString(), Name: name, Description: description}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	ctx = logging.WithProjectID(ctx, p.ID)
	s.logger.InfoContext(ctx, "project created", slog.String("name", p.Name))
	s.publish(ctx, streaming.StreamEvent{ProjectID: p.ID, EventType: schema.EventProjectCreated, Payload: p})
	return p, nil
}

// GetProject returns a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*store.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListProjects returns every project, oldest first.
func (s *Service) ListProjects(ctx context.Context) ([]*store.Project, error) {
	return s.store.ListProjects(ctx)
}

// DeleteProject removes a project with its diagrams, events and rules.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	ctx = logging.WithProjectID(ctx, id)
	s.logger.InfoContext(ctx, "project deleted")
	s.publish(ctx, streaming.StreamEvent{ProjectID: id, EventType: schema.EventProjectDeleted})
	return nil
}

// --- Diagrams ---

// CreateDiagramInput describes a new diagram.
type CreateDiagramInput struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Source    string `json:"source"`
}

// CreateDiagram parses the source and stores the diagram at revision 1.
func (s *Service) CreateDiagram(ctx context.Context, in CreateDiagramInput) (*store.Diagram, error) {
	if in.ProjectID == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "project_id is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "diagram name is required")
	}

	parsed := s.Parse(in.Source)
	issues, err := marshalIssues(parsed.Issues)
	if err != nil {
		return nil, err
	}
	d := &store.Diagram{
		ID:        uuid.NewString(),
		ProjectID: in.ProjectID,
		Name:      name,
		Source:    in.Source,
		Graph:     parsed.Graph,
		Issues:    issues,
		Revision:  1,
	}
	if err := s.store.CreateDiagram(ctx, d); err != nil {
		return nil, err
	}

	ctx = logging.WithIDs(ctx, d.ProjectID, d.ID)
	s.logger.InfoContext(ctx, "diagram created",
		slog.Int("nodes", len(d.Graph.Nodes)),
		slog.Int("edges", len(d.Graph.Edges)),
		slog.Int("issues", len(parsed.Issues)),
	)
	s.record(ctx, d, schema.EventDiagramCreated, store.SourcePayload{Source: d.Source, Revision: d.Revision})
	return d, nil
}

// GetDiagram returns a diagram by id.
func (s *Service) GetDiagram(ctx context.Context, id string) (*store.Diagram, error) {
	return s.store.GetDiagram(ctx, id)
}

// ListDiagrams returns the diagrams of a project.
func (s *Service) ListDiagrams(ctx context.Context, projectID string, limit, offset int) ([]*store.Diagram, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListDiagrams(ctx, store.DiagramFilter{ProjectID: projectID, Limit: limit, Offset: offset})
}

// DeleteDiagram removes a diagram. Its events stay until pruned.
func (s *Service) DeleteDiagram(ctx context.Context, id string) error {
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDiagram(ctx, id); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, d.ProjectID, d.ID)
	s.logger.InfoContext(ctx, "diagram deleted")
	s.publish(ctx, streaming.StreamEvent{
		ProjectID: d.ProjectID,
		DiagramID: d.ID,
		EventType: schema.EventDiagramDeleted,
		Revision:  d.Revision,
	})
	return nil
}

// RenameDiagram changes a diagram's name.
func (s *Service) RenameDiagram(ctx context.Context, id, name string, expectedRevision int64) (*store.Diagram, error) {
	return s.ChangeDiagram(ctx, id, DiagramChanges{Name: &name}, expectedRevision)
}

// DiagramChanges holds the fields a canvas client may change together. Nil
// fields are left untouched.
type DiagramChanges struct {
	Name  *string
	Graph *schema.Graph
}

// ChangeDiagram validates every change before writing, then stores them as a
// single revision. A rename alone records no event.
func (s *Service) ChangeDiagram(ctx context.Context, id string, ch DiagramChanges, expectedRevision int64) (*store.Diagram, error) {
	if ch.Name == nil && ch.Graph == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "name or graph is required")
	}
	update := store.DiagramUpdate{ExpectedRevision: expectedRevision}
	if ch.Name != nil {
		name := strings.TrimSpace(*ch.Name)
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeInvalidInput, "diagram name is required")
		}
		update.Name = &name
	}
	if ch.Graph == nil {
		return s.update(ctx, id, update, "", nil)
	}

	g := *ch.Graph
	if err := s.validator.ValidateGraph(&g); err != nil {
		return nil, err
	}
	update.Graph = &g
	return s.update(ctx, id, update, schema.EventDiagramGraphChanged, func(rev int64) any {
		return map[string]any{"nodes": len(g.Nodes), "edges": len(g.Edges), "revision": rev}
	})
}

// UpdateSource replaces the source text and re-parses the graph. Canvas edits
// made since the last parse are discarded.
func (s *Service) UpdateSource(ctx context.Context, id, source string, expectedRevision int64) (*store.Diagram, error) {
	parsed := s.Parse(source)
	issues, err := marshalIssues(parsed.Issues)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = json.RawMessage("[]")
	}
	update := store.DiagramUpdate{
		Source:           &source,
		Graph:            &parsed.Graph,
		Issues:           issues,
		ExpectedRevision: expectedRevision,
	}
	return s.update(ctx, id, update, schema.EventDiagramSourceChanged, func(rev int64) any {
		return store.SourcePayload{Source: source, Revision: rev}
	})
}

// UpdateGraph replaces the graph with a canvas state after validating it.
func (s *Service) UpdateGraph(ctx context.Context, id string, g schema.Graph, expectedRevision int64) (*store.Diagram, error) {
	return s.ChangeDiagram(ctx, id, DiagramChanges{Graph: &g}, expectedRevision)
}

// Edit applies editor operations to the stored graph. Either every op
// applies or nothing is saved.
func (s *Service) Edit(ctx context.Context, id string, ops []editor.Op, expectedRevision int64) (*store.Diagram, error) {
	if len(ops) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "at least one edit operation is required")
	}
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedRevision != 0 && expectedRevision != d.Revision {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"diagram %s is at revision %d, not %d", id, d.Revision, expectedRevision).
			WithDetails(map[string]any{"revision": d.Revision})
	}

	session := editor.NewSession(d.Graph)
	if err := session.Apply(ops...); err != nil {
		return nil, err
	}
	g := session.Graph()
	update := store.DiagramUpdate{Graph: &g, ExpectedRevision: d.Revision}
	return s.update(ctx, id, update, schema.EventDiagramEdited, func(rev int64) any {
		return map[string]any{"ops": ops, "revision": rev}
	})
}

// update writes the change. When eventType is set the event is stored in the
// same transaction, built from the revision the write produced, and then
// published.
func (s *Service) update(ctx context.Context, id string, update store.DiagramUpdate, eventType string, payload func(rev int64) any) (*store.Diagram, error) {
	var body any
	if eventType != "" {
		update.Event = func(rev int64) (*store.Event, error) {
			body = payload(rev)
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
			}
			return &store.Event{Type: eventType, Payload: raw}, nil
		}
	}
	rev, err := s.store.UpdateDiagram(ctx, id, update)
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIDs(ctx, d.ProjectID, d.ID)
	s.logger.InfoContext(ctx, "diagram updated", slog.Int64("revision", rev), slog.String("event", eventType))
	if eventType != "" {
		s.publish(ctx, streaming.StreamEvent{
			ProjectID: d.ProjectID,
			DiagramID: d.ID,
			EventType: eventType,
			Revision:  rev,
			Payload:   body,
		})
	}
	return d, nil
}

// History returns the diagram's events with a sequence greater than since.
func (s *Service) History(ctx context.Context, id string, since int64) ([]*store.Event, error) {
	if _, err := s.store.GetDiagram(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetEvents(ctx, id, since)
}

// HistoryByType returns up to limit of the diagram's events of one type,
// newest first. A limit of zero returns them all.
func (s *Service) HistoryByType(ctx context.Context, id, eventType string, limit int) ([]*store.Event, error) {
	if _, err := s.store.GetDiagram(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetEventsByType(ctx, eventType, store.EventFilter{DiagramID: id, Limit: limit})
}

// Sources returns the source text recorded at each revision.
func (s *Service) Sources(ctx context.Context, id string) (map[int64]string, error) {
	if s.replayer == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "source history is not available")
	}
	if _, err := s.store.GetDiagram(ctx, id); err != nil {
		return nil, err
	}
	return s.replayer.ReplaySources(ctx, id)
}

// record appends an event and publishes it. The diagram write already
// succeeded, so failures are logged rather than returned.
func (s *Service) record(ctx context.Context, d *store.Diagram, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event payload", slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}
	ev := &store.Event{
		DiagramID: d.ID,
		ProjectID: d.ProjectID,
		Type:      eventType,
		Payload:   raw,
		Revision:  d.Revision,
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "append event", slog.String("event", eventType), slog.String("error", err.Error()))
	}
	s.publish(ctx, streaming.StreamEvent{
		ProjectID: d.ProjectID,
		DiagramID: d.ID,
		EventType: eventType,
		Revision:  d.Revision,
		Payload:   payload,
	})
}

func (s *Service) publish(ctx context.Context, ev streaming.StreamEvent) {
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish event", slog.String("event", ev.EventType), slog.String("error", err.Error()))
	}
}

func marshalIssues(issues []plantuml.Issue) (json.RawMessage, error) {
	if len(issues) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("marshal parse issues: %w", err)
	}
	return raw, nil
}
