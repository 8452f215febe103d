package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ucdiagram/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedProject(t *testing.T, s *LibSQLStore) *Project {
	t.Helper()
	p := &Project{ID: uuid.New().String(), Name: "shop"}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func testGraph() schema.Graph {
	return schema.Graph{
		Nodes: []schema.Node{
			{ID: "actor_1", Kind: schema.NodeKindActor, Label: "User", Position: schema.Position{X: 50, Y: 50}},
			{ID: "usecase_1", Kind: schema.NodeKindUseCase, Label: "Login", Position: schema.Position{X: 350, Y: 50}},
		},
		Edges: []schema.Edge{{
			ID: "eactor_1-usecase_1", SourceID: "actor_1", TargetID: "usecase_1",
			Relation: schema.RelationAssociation, SourceHandle: schema.HandleRight, TargetHandle: schema.HandleLeft,
		}},
	}
}

func seedDiagram(t *testing.T, s *LibSQLStore, p *Project) *Diagram {
	t.Helper()
	d := &Diagram{
		ID:        uuid.New().String(),
		ProjectID: p.ID,
		Name:      "login",
		Source:    "actor \"User\"\nusecase \"Login\"\n\"User\" --> \"Login\"",
		Graph:     testGraph(),
	}
	require.NoError(t, s.CreateDiagram(context.Background(), d))
	return d
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, schema.ErrorCode(err), err.Error())
}

// --- Migrations ---

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_more.sql":   {Data: []byte("CREATE TABLE b (id TEXT);")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
		"migrations/README.md":      {Data: []byte("ignored")},
		"migrations/010_later.sql":  {Data: []byte("-- only a comment\n;")},
		"elsewhere/003_skipped.sql": {Data: []byte("nope")},
	}
	ms, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{ms[0].Version, ms[1].Version, ms[2].Version})
	assert.Equal(t, "first", ms[0].Name)
	assert.Empty(t, splitStatements(ms[2].SQL))
}

func TestLoadMigrations_BadNames(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{"migrations/initial.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = loadMigrations(fstest.MapFS{"migrations/abc_x.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = loadMigrations(fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("")},
		"migrations/1_b.sql":   {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "already used")
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	extra := []migration{{Version: 2, Name: "notes", SQL: "CREATE TABLE notes (id TEXT PRIMARY KEY); CREATE INDEX idx_notes ON notes(id);"}}
	require.NoError(t, runMigrations(ctx, s.DB(), extra))
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = s.DB().ExecContext(ctx, `INSERT INTO notes (id) VALUES ('n1')`)
	require.NoError(t, err)

	bad := []migration{{Version: 3, Name: "broken", SQL: "CREATE TABLE;"}}
	require.Error(t, runMigrations(ctx, s.DB(), bad))
	v, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// --- Projects ---

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Project{ID: "p1", Name: "Shop", Description: "online shop"}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Shop", got.Name)
	assert.Equal(t, "online shop", got.Description)
	assert.False(t, got.CreatedAt.IsZero())

	assertCode(t, schema.ErrCodeConflict, s.CreateProject(ctx, &Project{ID: "p1", Name: "again"}))
}

func TestGetProject_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	assertCode(t, schema.ErrCodeNotFound, err)
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	seedProject(t, s)
	seedProject(t, s)
	projects, err = s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestDeleteProject_RemovesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	d := seedDiagram(t, s, p)
	require.NoError(t, s.CreateRule(ctx, &Rule{ID: "r1", ProjectID: p.ID, Name: "labels", Engine: "expr", Expression: "true"}))
	require.NoError(t, s.AppendEvent(ctx, &Event{DiagramID: d.ID, ProjectID: p.ID, Type: schema.EventDiagramCreated}))

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetDiagram(ctx, d.ID)
	assertCode(t, schema.ErrCodeNotFound, err)
	rules, err := s.ListRules(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
	events, err := s.GetEvents(ctx, d.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	assertCode(t, schema.ErrCodeNotFound, s.DeleteProject(ctx, p.ID))
}

// --- Diagrams ---

func TestCreateAndGetDiagram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))
	assert.Equal(t, int64(1), d.Revision)

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Source, got.Source)
	assert.Equal(t, testGraph(), got.Graph)
	assert.Equal(t, int64(1), got.Revision)
	assert.Nil(t, got.Issues)
}

func TestCreateDiagram_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	d := seedDiagram(t, s, p)

	dup := *d
	assertCode(t, schema.ErrCodeConflict, s.CreateDiagram(ctx, &dup))

	orphan := &Diagram{ID: "orphan", ProjectID: "nope", Name: "x", Graph: testGraph()}
	assertCode(t, schema.ErrCodeNotFound, s.CreateDiagram(ctx, orphan))
}

func TestGetDiagram_EmptyGraphSlices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	require.NoError(t, s.CreateDiagram(ctx, &Diagram{ID: "empty", ProjectID: p.ID, Name: "empty"}))

	got, err := s.GetDiagram(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, got.Graph.Nodes)
	assert.NotNil(t, got.Graph.Edges)
}

func TestUpdateDiagram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	src := `usecase "Only"`
	g := schema.Graph{Nodes: []schema.Node{{ID: "usecase_1", Kind: schema.NodeKindUseCase, Label: "Only"}}, Edges: []schema.Edge{}}
	rev, err := s.UpdateDiagram(ctx, d.ID, DiagramUpdate{
		Source:           &src,
		Graph:            &g,
		Issues:           json.RawMessage(`[]`),
		ExpectedRevision: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, src, got.Source)
	assert.Equal(t, g, got.Graph)
	assert.Equal(t, int64(2), got.Revision)
	assert.JSONEq(t, `[]`, string(got.Issues))
	assert.Equal(t, "login", got.Name)

	name := "renamed"
	rev, err = s.UpdateDiagram(ctx, d.ID, DiagramUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)
}

func TestUpdateDiagram_NoChanges(t *testing.T) {
	s := newTestStore(t)
	d := seedDiagram(t, s, seedProject(t, s))
	rev, err := s.UpdateDiagram(context.Background(), d.ID, DiagramUpdate{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
}

func TestUpdateDiagram_RevisionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	src := "stale"
	_, err := s.UpdateDiagram(ctx, d.ID, DiagramUpdate{Source: &src, ExpectedRevision: 7})
	assertCode(t, schema.ErrCodeConflict, err)

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Source, got.Source)
	assert.Equal(t, int64(1), got.Revision)

	_, err = s.UpdateDiagram(ctx, "missing", DiagramUpdate{Source: &src})
	assertCode(t, schema.ErrCodeNotFound, err)
}

func TestUpdateDiagram_EventInSameTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	src := `actor "B"`
	var seen int64
	rev, err := s.UpdateDiagram(ctx, d.ID, DiagramUpdate{
		Source: &src,
		Event: func(revision int64) (*Event, error) {
			seen = revision
			payload, err := json.Marshal(SourcePayload{Source: src, Revision: revision})
			if err != nil {
				return nil, err
			}
			return &Event{Type: schema.EventDiagramSourceChanged, Payload: payload}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, rev, seen)

	events, err := s.GetEvents(ctx, d.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, rev, events[0].Revision)
	assert.Equal(t, d.ProjectID, events[0].ProjectID)
	assert.JSONEq(t, `{"source":"actor \"B\"","revision":2}`, string(events[0].Payload))
}

func TestUpdateDiagram_EventErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	src := "discarded"
	_, err := s.UpdateDiagram(ctx, d.ID, DiagramUpdate{
		Source: &src,
		Event: func(int64) (*Event, error) {
			return nil, errors.New("payload failed")
		},
	})
	require.Error(t, err)

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Source, got.Source)
	assert.Equal(t, int64(1), got.Revision)

	events, err := s.GetEvents(ctx, d.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListDiagrams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1, p2 := seedProject(t, s), seedProject(t, s)
	for i := 0; i < 3; i++ {
		seedDiagram(t, s, p1)
	}
	seedDiagram(t, s, p2)

	all, err := s.ListDiagrams(ctx, DiagramFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	inP1, err := s.ListDiagrams(ctx, DiagramFilter{ProjectID: p1.ID})
	require.NoError(t, err)
	assert.Len(t, inP1, 3)

	page, err := s.ListDiagrams(ctx, DiagramFilter{ProjectID: p1.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestDeleteDiagram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	require.NoError(t, s.DeleteDiagram(ctx, d.ID))
	assertCode(t, schema.ErrCodeNotFound, s.DeleteDiagram(ctx, d.ID))
}

// --- Events ---

func TestAppendEvent_AssignsSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	for i := 1; i <= 3; i++ {
		e := &Event{DiagramID: d.ID, ProjectID: d.ProjectID, Type: schema.EventDiagramEdited, Revision: int64(i)}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i), e.Sequence)
		assert.False(t, e.Timestamp.IsZero())
	}

	events, err := s.GetEvents(ctx, d.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[2].Revision)
}

func TestGetEventsByType_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, s.AppendEvent(ctx, &Event{DiagramID: d.ID, ProjectID: d.ProjectID, Type: schema.EventDiagramEdited, Timestamp: old}))
	require.NoError(t, s.AppendEvent(ctx, &Event{DiagramID: d.ID, ProjectID: d.ProjectID, Type: schema.EventDiagramEdited}))

	since := time.Now().UTC().Add(-time.Hour)
	events, err := s.GetEventsByType(ctx, schema.EventDiagramEdited, EventFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Sequence)
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDiagram(t, s, seedProject(t, s))

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.AppendEvent(ctx, &Event{DiagramID: d.ID, ProjectID: d.ProjectID, Type: schema.EventDiagramCreated, Timestamp: old}))
	require.NoError(t, s.AppendEvent(ctx, &Event{DiagramID: d.ID, ProjectID: d.ProjectID, Type: schema.EventDiagramEdited}))

	n, err := s.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := s.GetEvents(ctx, d.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventDiagramEdited, events[0].Type)
}

// --- Rules ---

func TestRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	r := &Rule{ID: "r1", ProjectID: p.ID, Name: "short-labels", Engine: "cel", Expression: "size(node.label) < 40", Message: "label too long"}
	require.NoError(t, s.CreateRule(ctx, r))
	assert.Equal(t, "warning", r.Severity)
	require.NoError(t, s.CreateRule(ctx, &Rule{ID: "r2", ProjectID: p.ID, Name: "actors", Engine: "expr", Expression: "true", Severity: "error"}))

	assertCode(t, schema.ErrCodeConflict, s.CreateRule(ctx, &Rule{ID: "r3", ProjectID: p.ID, Name: "actors", Engine: "expr", Expression: "true"}))
	assertCode(t, schema.ErrCodeNotFound, s.CreateRule(ctx, &Rule{ID: "r4", ProjectID: "nope", Name: "x", Engine: "expr", Expression: "true"}))

	rules, err := s.ListRules(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "actors", rules[0].Name)
	assert.Equal(t, "label too long", rules[1].Message)

	require.NoError(t, s.DeleteRule(ctx, "r1"))
	assertCode(t, schema.ErrCodeNotFound, s.DeleteRule(ctx, "r1"))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Vacuum(context.Background()))
}

var _ Store = (*LibSQLStore)(nil)
