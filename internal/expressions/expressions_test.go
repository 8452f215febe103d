package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ucdiagram/internal/plantuml"
	"github.com/rendis/ucdiagram/pkg/schema"
)

const shop = `actor "Customer"
rectangle Shop {
  usecase "Checkout"
  usecase "Pay"
}
usecase "Browse"
"Customer" --> "Checkout"
"Checkout" .> "Pay" : include`

func shopScope(t *testing.T) *GraphScope {
	t.Helper()
	s, err := NewGraphScope(plantuml.Parse(shop).Graph)
	require.NoError(t, err)
	return s
}

func nodeIndex(t *testing.T, s *GraphScope, id string) int {
	t.Helper()
	for i := 0; i < s.Len(); i++ {
		if s.NodeID(i) == id {
			return i
		}
	}
	t.Fatalf("node %s not in scope", id)
	return -1
}

// --- GraphScope ---

func TestGraphScope_NodeData(t *testing.T) {
	s := shopScope(t)
	assert.Equal(t, 5, s.Len())

	data := s.NodeData(nodeIndex(t, s, "usecase_1"))
	node := data["node"].(map[string]any)
	assert.Equal(t, "Checkout", node["label"])
	assert.Equal(t, "package_1", node["containerId"])
	assert.Equal(t, int64(2), data["degree"])
	assert.Len(t, data["edges"], 2)

	browse := s.NodeData(nodeIndex(t, s, "usecase_3"))
	assert.Equal(t, int64(0), browse["degree"])
	assert.Equal(t, []any{}, browse["edges"])
}

func TestGraphScope_NodeIsACopy(t *testing.T) {
	s := shopScope(t)
	i := nodeIndex(t, s, "actor_1")
	s.NodeData(i)["node"].(map[string]any)["label"] = "changed"
	assert.Equal(t, "Customer", s.NodeData(i)["node"].(map[string]any)["label"])

	g := s.Graph()
	g["nodes"] = nil
	assert.NotNil(t, s.Graph()["nodes"])
}

// --- Registry ---

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"cel", "expr"}, r.Names())
	assert.NotNil(t, r.JQ())

	e, err := r.Get("cel")
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())

	_, err = r.Get("lua")
	assert.Equal(t, schema.ErrCodeInvalidInput, schema.ErrorCode(err))
}

// --- Engines over node data ---

func TestEngines_NodeRules(t *testing.T) {
	s := shopScope(t)
	celEngine, err := NewCELEngine()
	require.NoError(t, err)
	exprEngine := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		name   string
		engine Engine
		expr   string
		node   string
		want   any
	}{
		{"cel kind", celEngine, `node.kind == "actor"`, "actor_1", true},
		{"cel degree", celEngine, `degree > 0`, "usecase_3", false},
		{"cel edges", celEngine, `edges.exists(e, e.relationKind == "include")`, "usecase_2", true},
		{"cel graph", celEngine, `size(graph.nodes)`, "actor_1", int64(5)},
		{"cel containment", celEngine, `has(node.containerId)`, "usecase_3", false},
		{"expr kind", exprEngine, `node.kind == "usecase" && degree == 0`, "usecase_3", true},
		{"expr edges", exprEngine, `any(edges, .relationKind == "association")`, "usecase_1", true},
		{"expr label", exprEngine, `len(node.label) < 20`, "usecase_1", true},
		{"expr graph", exprEngine, `count(graph.nodes, .kind == "package")`, "actor_1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.engine.Evaluate(ctx, tt.expr, s.NodeData(nodeIndex(t, s, tt.node)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCEL_MissingVariablesDefault(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	out, err := e.Evaluate(context.Background(), `degree == 0 && size(edges) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEngines_Errors(t *testing.T) {
	celEngine, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		engine Engine
		expr   string
		code   string
		stage  string
	}{
		{"cel empty", celEngine, "", schema.ErrCodeInvalidInput, ""},
		{"cel syntax", celEngine, "node.kind ==", schema.ErrCodeExpression, "compile"},
		{"cel unknown var", celEngine, "steps.a", schema.ErrCodeExpression, "compile"},
		{"cel runtime", celEngine, "node.missing == 1", schema.ErrCodeExpression, "eval"},
		{"expr empty", NewExprEngine(), "", schema.ErrCodeInvalidInput, ""},
		{"expr syntax", NewExprEngine(), "node.kind ==", schema.ErrCodeExpression, "compile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.Evaluate(ctx, tt.expr, map[string]any{"node": map[string]any{}})
			var se *schema.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			if tt.stage != "" {
				assert.Equal(t, tt.stage, se.Details["stage"])
			}
		})
	}
}

func TestCEL_Check(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.NoError(t, e.Check(`node.kind == "actor"`))
	assert.Error(t, e.Check(`node.kind ==`))
}

// --- jq over the graph ---

func TestJQ_GraphQueries(t *testing.T) {
	s := shopScope(t)
	q := NewJQ()
	ctx := context.Background()

	out, err := q.Run(ctx, `[.nodes[] | select(.kind == "usecase") | .label]`, s.Graph())
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"Checkout", "Pay", "Browse"}}, out)

	out, err = q.Run(ctx, `.edges[] | .id`, s.Graph())
	require.NoError(t, err)
	assert.Equal(t, []any{"eactor_1-usecase_1", "eusecase_1-usecase_2-include"}, out)

	out, err = q.Run(ctx, `.nodes[] | select(.kind == "note")`, s.Graph())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	out, err = q.Run(ctx, `.edges | length`, s.Graph())
	require.NoError(t, err)
	assert.Equal(t, []any{2}, out)
}

func TestJQ_Errors(t *testing.T) {
	q := NewJQ()
	tests := []struct {
		name  string
		expr  string
		code  string
		stage string
	}{
		{"empty", "", schema.ErrCodeInvalidInput, ""},
		{"syntax", ".nodes[", schema.ErrCodeExpression, "compile"},
		{"runtime", `error("boom")`, schema.ErrCodeExpression, "eval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Run(context.Background(), tt.expr, map[string]any{})
			var se *schema.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			if tt.stage != "" {
				assert.Equal(t, tt.stage, se.Details["stage"])
			}
		})
	}
}

func TestJQ_NoEnvironment(t *testing.T) {
	t.Setenv("UCDIAGRAM_SECRET", "hidden")
	out, err := NewJQ().Run(context.Background(), `$ENV.UCDIAGRAM_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, out)
}

// --- Interpolate ---

func TestInterpolate(t *testing.T) {
	s := shopScope(t)
	data := s.NodeData(nodeIndex(t, s, "usecase_1"))

	out, err := Interpolate(`${{node.label}} has ${{ degree }} relations in ${{node.containerId}}`, data)
	require.NoError(t, err)
	assert.Equal(t, "Checkout has 2 relations in package_1", out)

	out, err = Interpolate(`at ${{node.position}}`, data)
	require.NoError(t, err)
	assert.Equal(t, `at {"x":350,"y":90}`, out)

	out, err = Interpolate("no references", data)
	require.NoError(t, err)
	assert.Equal(t, "no references", out)
	assert.False(t, HasInterpolation(out))
}

func TestInterpolate_Errors(t *testing.T) {
	data := map[string]any{"node": map[string]any{"label": "A"}}
	for _, tmpl := range []string{
		"${{node.label",
		"${{ }}",
		"${{node.${{x}}}}",
		"${{node.missing}}",
		"${{node.label.deeper}}",
		"${{node..label}}",
	} {
		_, err := Interpolate(tmpl, data)
		assert.Equal(t, schema.ErrCodeExpression, schema.ErrorCode(err), tmpl)
	}
}

func TestEngines_ConcurrentCache(t *testing.T) {
	s := shopScope(t)
	celEngine, err := NewCELEngine()
	require.NoError(t, err)
	exprEngine := NewExprEngine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := s.NodeData(i % s.Len())
			_, err := celEngine.Evaluate(context.Background(), `degree >= 0`, data)
			assert.NoError(t, err)
			_, err = exprEngine.Evaluate(context.Background(), `degree >= 0`, data)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
