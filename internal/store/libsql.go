package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations(migrationFS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return runMigrations(ctx, s.db, migrations)
}

// SchemaVersion returns the highest applied migration version.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Projects ---

func (s *LibSQLStore) CreateProject(ctx context.Context, p *Project) error {
	p.CreatedAt = timeOrNow(p.CreatedAt)
	p.UpdatedAt = timeOrNow(p.UpdatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullStr(p.Description), p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "project %q already exists", p.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	return p, nil
}

func (s *LibSQLStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project with its diagrams, rules and events.
func (s *LibSQLStore) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM diagrams WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project diagrams: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "project", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Diagrams ---

func (s *LibSQLStore) CreateDiagram(ctx context.Context, d *Diagram) error {
	graph, err := json.Marshal(d.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if d.Revision == 0 {
		d.Revision = 1
	}
	d.CreatedAt = timeOrNow(d.CreatedAt)
	d.UpdatedAt = timeOrNow(d.UpdatedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagrams (id, project_id, name, source, graph, issues, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Name, d.Source, string(graph), nullRaw(d.Issues), d.Revision, d.CreatedAt, d.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return schema.NewErrorf(schema.ErrCodeConflict, "diagram %q already exists", d.ID).WithCause(err)
	case isForeignKeyViolation(err):
		return storeNotFound("project", d.ProjectID).WithCause(err)
	}
	return err
}

const diagramColumns = `id, project_id, name, source, graph, issues, revision, created_at, updated_at`

func (s *LibSQLStore) GetDiagram(ctx context.Context, id string) (*Diagram, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+diagramColumns+` FROM diagrams WHERE id = ?`, id)
	d, err := scanDiagram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("diagram", id)
	}
	return d, err
}

// UpdateDiagram applies update and returns the new revision. A mismatching
// ExpectedRevision yields a CONFLICT error and leaves the row unchanged.
func (s *LibSQLStore) UpdateDiagram(ctx context.Context, id string, update DiagramUpdate) (int64, error) {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, *update.Source)
	}
	if update.Graph != nil {
		graph, err := json.Marshal(update.Graph)
		if err != nil {
			return 0, fmt.Errorf("marshal graph: %w", err)
		}
		sets = append(sets, "graph = ?")
		args = append(args, string(graph))
	}
	if update.Issues != nil {
		sets = append(sets, "issues = ?")
		args = append(args, nullRaw(update.Issues))
	}
	if len(sets) == 0 {
		d, err := s.GetDiagram(ctx, id)
		if err != nil {
			return 0, err
		}
		return d.Revision, nil
	}
	sets = append(sets, "revision = revision + 1", "updated_at = CURRENT_TIMESTAMP")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		current   int64
		projectID string
	)
	err = tx.QueryRowContext(ctx, `SELECT revision, project_id FROM diagrams WHERE id = ?`, id).Scan(&current, &projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storeNotFound("diagram", id)
	}
	if err != nil {
		return 0, err
	}
	if update.ExpectedRevision != 0 && update.ExpectedRevision != current {
		return 0, schema.NewErrorf(schema.ErrCodeConflict,
			"diagram %q is at revision %d, expected %d", id, current, update.ExpectedRevision).
			WithDetails(map[string]any{"revision": current})
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE diagrams SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}

	next := current + 1
	if update.Event != nil {
		ev, err := update.Event(next)
		if err != nil {
			return 0, err
		}
		if ev == nil {
			return 0, fmt.Errorf("diagram %s: update event builder returned nil", id)
		}
		ev.DiagramID = id
		ev.ProjectID = projectID
		ev.Revision = next
		if err := insertEvent(ctx, tx, ev); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit diagram update: %w", err)
	}
	return next, nil
}

func (s *LibSQLStore) ListDiagrams(ctx context.Context, filter DiagramFilter) ([]*Diagram, error) {
	var where []string
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}

	query := `SELECT ` + diagramColumns + ` FROM diagrams`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diagrams []*Diagram
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, err
		}
		diagrams = append(diagrams, d)
	}
	return diagrams, rows.Err()
}

func (s *LibSQLStore) DeleteDiagram(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "diagram", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagram(row rowScanner) (*Diagram, error) {
	d := &Diagram{}
	var graphJSON string
	var issues sql.NullString
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Source, &graphJSON, &issues, &d.Revision, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(graphJSON), &d.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph of diagram %s: %w", d.ID, err)
	}
	if d.Graph.Nodes == nil {
		d.Graph.Nodes = []schema.Node{}
	}
	if d.Graph.Edges == nil {
		d.Graph.Edges = []schema.Edge{}
	}
	d.Issues = rawOrNil(issues)
	return d, nil
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-diagram sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction. A write forces
	// the lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// insertEvent assigns the next per-diagram sequence and inserts event.
func insertEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE diagram_id = ?`, event.DiagramID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (diagram_id, project_id, event_type, payload, revision, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.DiagramID, event.ProjectID, event.Type, nullRaw(event.Payload), event.Revision, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

const eventColumns = `id, diagram_id, project_id, event_type, payload, revision, timestamp, sequence`

func (s *LibSQLStore) GetEvents(ctx context.Context, diagramID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE diagram_id = ? AND sequence > ? ORDER BY sequence ASC`,
		diagramID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	where = append(where, "event_type = ?")
	args = append(args, eventType)

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.DiagramID != "" {
		where = append(where, "diagram_id = ?")
		args = append(args, filter.DiagramID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(where, " AND ")
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PruneEvents deletes events recorded before the cutoff and returns how many
// were removed.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.DiagramID, &e.ProjectID, &e.Type, &payload, &e.Revision, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Rules ---

func (s *LibSQLStore) CreateRule(ctx context.Context, r *Rule) error {
	r.CreatedAt = timeOrNow(r.CreatedAt)
	if r.Severity == "" {
		r.Severity = "warning"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, project_id, name, engine, expression, severity, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Name, r.Engine, r.Expression, r.Severity, nullStr(r.Message), r.CreatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return schema.NewErrorf(schema.ErrCodeConflict, "rule %q already exists in project %s", r.Name, r.ProjectID).WithCause(err)
	case isForeignKeyViolation(err):
		return storeNotFound("project", r.ProjectID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) ListRules(ctx context.Context, projectID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, engine, expression, severity, message, created_at
		 FROM rules WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r := &Rule{}
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Engine, &r.Expression, &r.Severity, &msg, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Message = msg.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *LibSQLStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "rule", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
