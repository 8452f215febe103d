package expressions

import (
	"context"
	"sort"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// Engine evaluates a rule expression against the data of one node.
// Two implementations: CEL and Expr.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry holds one instance of each rule engine, keyed by name, plus the
// jq query runner.
type Registry struct {
	engines map[string]Engine
	jq      *JQ
}

// NewRegistry creates the cel and expr engines and the jq runner.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	r := &Registry{engines: make(map[string]Engine), jq: NewJQ()}
	for _, e := range []Engine{celEngine, NewExprEngine()} {
		r.engines[e.Name()] = e
	}
	return r, nil
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown expression engine %q", name).
			WithDetails(map[string]any{"available": r.Names()})
	}
	return e, nil
}

// JQ returns the shared jq query runner.
func (r *Registry) JQ() *JQ { return r.jq }

// Names lists the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func compileError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"%s compile error in %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "stage": "compile"})
}

func evalError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeExpression,
		"%s evaluation failed for %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "stage": "eval"})
}
