package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression Language.
// It evaluates per-node lint rules.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL expression engine. The environment exposes
// the variables built by GraphScope.NodeData:
//   - node   map(string, dyn)  the node under evaluation
//   - degree int               number of edges touching the node
//   - edges  list(dyn)         those edges
//   - graph  map(string, dyn)  the whole graph
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("node", mapType),
		cel.Variable("degree", cel.IntType),
		cel.Variable("edges", cel.ListType(cel.DynType)),
		cel.Variable("graph", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates it
// against the provided data.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, buildActivation(data))
	if err != nil {
		return nil, evalError("CEL", expression, err)
	}
	return out.Value(), nil
}

// Check compiles expression without evaluating it.
func (e *CELEngine) Check(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError("CEL", expression, issues.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, compileError("CEL", expression, err)
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation fills missing variables with empty values to avoid CEL
// runtime errors on absent keys.
func buildActivation(data map[string]any) map[string]any {
	activation := map[string]any{
		"node":   map[string]any{},
		"degree": int64(0),
		"edges":  []any{},
		"graph":  map[string]any{},
	}
	for key := range activation {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
