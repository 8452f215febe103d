package expressions

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// JQ runs ad-hoc jq queries over a graph document, for example
// `.nodes[] | select(.kind == "actor") | .label`. It is not a rule Engine:
// a query yields any number of values rather than one verdict per node.
// Compiled programs are cached by expression text and shared across goroutines.
type JQ struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

// NewJQ creates an empty query runner.
func NewJQ() *JQ {
	return &JQ{codes: make(map[string]*gojq.Code)}
}

// Run evaluates expression against input and returns every output in order.
// No output is an empty, non-nil slice.
func (q *JQ) Run(ctx context.Context, expression string, input any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "empty jq expression")
	}
	code, err := q.compile(expression)
	if err != nil {
		return nil, err
	}

	out := []any{}
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, evalError("jq", expression, err)
		}
		out = append(out, v)
	}
}

func (q *JQ) compile(expression string) (*gojq.Code, error) {
	q.mu.RLock()
	code, ok := q.codes[expression]
	q.mu.RUnlock()
	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, compileError("jq", expression, err)
	}
	// An empty environment keeps $ENV and env from reading the process.
	code, err = gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, compileError("jq", expression, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if cached, ok := q.codes[expression]; ok {
		return cached, nil
	}
	q.codes[expression] = code
	return code, nil
}
