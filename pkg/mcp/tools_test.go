package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/internal/store"
)

const shopSource = `@startuml
actor "Customer"
actor "Clerk"
usecase "Checkout"
usecase "Pay"
"Customer" --> "Checkout"
"Clerk" --> "Checkout"
"Checkout" .> "Pay" : include
@enduml`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ucd.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := diagrams.New(diagrams.Deps{
		Store:    st,
		Replayer: store.NewEventLog(st),
		Logger:   logger,
	})
	require.NoError(t, err)
	return NewServer(ServerDeps{Service: svc, Logger: logger})
}

func seedDiagram(t *testing.T, s *Server) *store.Diagram {
	t.Helper()
	ctx := context.Background()
	p, err := s.service.CreateProject(ctx, "shop", "")
	require.NoError(t, err)
	d, err := s.service.CreateDiagram(ctx, diagrams.CreateDiagramInput{ProjectID: p.ID, Name: "checkout", Source: shopSource})
	require.NoError(t, err)
	return d
}

// --- ucd.parse ---

func TestHandleParse(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleParse(context.Background(), buildRequest("ucd.parse", map[string]any{
		"source": shopSource,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out diagrams.ParseResult
	unmarshalResult(t, result, &out)
	assert.Len(t, out.Graph.Nodes, 4)
	assert.Len(t, out.Graph.Edges, 3)
	assert.Empty(t, out.Issues)
}

func TestHandleParse_EmptySource(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleParse(context.Background(), buildRequest("ucd.parse", map[string]any{
		"source": "",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out diagrams.ParseResult
	unmarshalResult(t, result, &out)
	assert.Empty(t, out.Graph.Nodes)
}

func TestHandleParse_MissingSource(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleParse(context.Background(), buildRequest("ucd.parse", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "source is required")
}

// --- ucd.render ---

func TestHandleRender_Source(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleRender(context.Background(), buildRequest("ucd.render", map[string]any{
		"source": shopSource,
		"format": "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	text := extractText(t, result)
	assert.Contains(t, text, "Customer")
	assert.Contains(t, text, "Checkout")
}

func TestHandleRender_StoredPNG(t *testing.T) {
	s := newTestServer(t)
	d := seedDiagram(t, s)

	result, err := s.handleRender(context.Background(), buildRequest("ucd.render", map[string]any{
		"diagram_id": d.ID,
		"format":     "png",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	png, err := base64.StdEncoding.DecodeString(extractText(t, result))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestHandleRender_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing format", map[string]any{"source": shopSource}, "format is required"},
		{"missing input", map[string]any{"format": "mermaid"}, "source or diagram_id is required"},
		{"unknown format", map[string]any{"source": shopSource, "format": "gif"}, "INVALID_INPUT"},
		{"unknown diagram", map[string]any{"diagram_id": "nope", "format": "json"}, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleRender(context.Background(), buildRequest("ucd.render", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.want)
		})
	}
}

// --- ucd.save / ucd.get ---

func TestHandleSave_CreateAndUpdate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	p, err := s.service.CreateProject(ctx, "shop", "")
	require.NoError(t, err)

	result, err := s.handleSave(ctx, buildRequest("ucd.save", map[string]any{
		"project_id": p.ID,
		"name":       "checkout",
		"source":     shopSource,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var created store.Diagram
	unmarshalResult(t, result, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Revision)

	result, err = s.handleSave(ctx, buildRequest("ucd.save", map[string]any{
		"diagram_id": created.ID,
		"source":     `actor "Solo"`,
		"revision":   float64(1),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var updated store.Diagram
	unmarshalResult(t, result, &updated)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Len(t, updated.Graph.Nodes, 1)
}

func TestHandleSave_StaleRevision(t *testing.T) {
	s := newTestServer(t)
	d := seedDiagram(t, s)

	result, err := s.handleSave(context.Background(), buildRequest("ucd.save", map[string]any{
		"diagram_id": d.ID,
		"source":     `actor "Solo"`,
		"revision":   float64(7),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "CONFLICT")
}

func TestHandleSave_UnknownProject(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSave(context.Background(), buildRequest("ucd.save", map[string]any{
		"project_id": "missing",
		"name":       "x",
		"source":     shopSource,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "NOT_FOUND")
}

func TestHandleGet(t *testing.T) {
	s := newTestServer(t)
	d := seedDiagram(t, s)

	result, err := s.handleGet(context.Background(), buildRequest("ucd.get", map[string]any{
		"diagram_id": d.ID,
		"watch":      true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		Diagram  store.Diagram `json:"diagram"`
		Watching bool          `json:"watching"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, d.ID, out.Diagram.ID)
	assert.Equal(t, "checkout", out.Diagram.Name)
	assert.False(t, out.Watching, "no client session in a bare context")
}

func TestHandleGet_NotFound(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGet(context.Background(), buildRequest("ucd.get", map[string]any{
		"diagram_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "NOT_FOUND")
}

// --- ucd.query ---

func TestHandleQuery(t *testing.T) {
	s := newTestServer(t)
	d := seedDiagram(t, s)

	for name, args := range map[string]map[string]any{
		"source":  {"source": shopSource},
		"diagram": {"diagram_id": d.ID},
	} {
		t.Run(name, func(t *testing.T) {
			args["jq"] = `.nodes[] | select(.kind == "actor") | .label`
			result, err := s.handleQuery(context.Background(), buildRequest("ucd.query", args))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))

			var out struct {
				Results []any `json:"results"`
			}
			unmarshalResult(t, result, &out)
			assert.Equal(t, []any{"Customer", "Clerk"}, out.Results)
		})
	}
}

func TestHandleQuery_BadExpression(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleQuery(context.Background(), buildRequest("ucd.query", map[string]any{
		"source": shopSource,
		"jq":     ".nodes[",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "EXPRESSION_ERROR")
}

// --- ucd.lint ---

func TestHandleLint_Source(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleLint(context.Background(), buildRequest("ucd.lint", map[string]any{
		"source": "actor \"Lonely\"\nusecase \"Orphan\"",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		Findings []lint.Finding `json:"findings"`
	}
	unmarshalResult(t, result, &out)
	require.NotEmpty(t, out.Findings)

	rules := make(map[string]bool)
	for _, f := range out.Findings {
		rules[f.Rule] = true
	}
	assert.True(t, rules["isolated-usecase"])
}

func TestHandleLint_ProjectRules(t *testing.T) {
	s := newTestServer(t)
	d := seedDiagram(t, s)
	_, err := s.service.CreateRule(context.Background(), d.ProjectID, lint.Rule{
		Name:       "no-clerk",
		Engine:     "expr",
		Expression: `node.label != "Clerk"`,
		Message:    "clerks are not allowed",
	})
	require.NoError(t, err)

	result, err := s.handleLint(context.Background(), buildRequest("ucd.lint", map[string]any{
		"diagram_id": d.ID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out struct {
		Findings []lint.Finding `json:"findings"`
	}
	unmarshalResult(t, result, &out)
	var hit bool
	for _, f := range out.Findings {
		if f.Rule == "no-clerk" {
			hit = true
			assert.Equal(t, "actor_2", f.NodeID)
		}
	}
	assert.True(t, hit)
}

func TestHandleLint_MissingInput(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleLint(context.Background(), buildRequest("ucd.lint", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
