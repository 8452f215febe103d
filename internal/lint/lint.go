// Package lint evaluates per-node rules over a use-case graph. Each rule is a
// boolean expression that must hold for every node; a node for which it
// evaluates to false yields a Finding.
package lint

import (
	"context"
	"errors"
	"fmt"

	"github.com/rendis/ucdiagram/internal/diagram"
	"github.com/rendis/ucdiagram/internal/expressions"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// Severities, in increasing order.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

var severityRank = map[string]int{SeverityInfo: 1, SeverityWarning: 2, SeverityError: 3}

// Rule is a named per-node check. Message may reference node data with
// ${{node.label}}, ${{degree}} and similar.
type Rule struct {
	Name       string `json:"name"`
	Engine     string `json:"engine"`
	Expression string `json:"expression"`
	Severity   string `json:"severity"`
	Message    string `json:"message,omitempty"`
}

// Finding is one rule violation on one node.
type Finding struct {
	Rule     string `json:"rule"`
	NodeID   string `json:"nodeId"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// BuiltinRules run on every diagram.
var BuiltinRules = []Rule{
	{
		Name:       "isolated-usecase",
		Engine:     "expr",
		Expression: `node.kind != "usecase" || degree > 0`,
		Severity:   SeverityWarning,
		Message:    `use case "${{node.label}}" has no relations`,
	},
	{
		Name:       "actor-without-association",
		Engine:     "expr",
		Expression: `node.kind != "actor" || any(edges, .relationKind == "association")`,
		Severity:   SeverityWarning,
		Message:    `actor "${{node.label}}" takes part in no association`,
	},
	{
		Name:       "empty-package",
		Engine:     "expr",
		Expression: `node.kind != "package" || any(graph.nodes, .containerId == node.id)`,
		Severity:   SeverityInfo,
		Message:    `package "${{node.label}}" contains no use cases`,
	},
}

type checker interface {
	Check(expression string) error
}

// Linter runs rules through the expression engines.
type Linter struct {
	engines *expressions.Registry
}

// New creates a Linter.
func New(engines *expressions.Registry) *Linter {
	return &Linter{engines: engines}
}

// CheckRule verifies that a rule names a rule engine and a severity and that
// its expression compiles.
func (l *Linter) CheckRule(r Rule) error {
	if r.Name == "" {
		return schema.NewError(schema.ErrCodeInvalidInput, "rule name is required")
	}
	if r.Severity != "" && severityRank[r.Severity] == 0 {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "rule %s: unknown severity %q", r.Name, r.Severity)
	}
	engine, err := l.ruleEngine(r)
	if err != nil {
		return err
	}
	if r.Expression == "" {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "rule %s: expression is required", r.Name)
	}
	if c, ok := engine.(checker); ok {
		return c.Check(r.Expression)
	}
	return nil
}

// Lint evaluates rules against every node of g, in rule order then node
// order.
func (l *Linter) Lint(ctx context.Context, g schema.Graph, rules []Rule) ([]Finding, error) {
	scope, err := expressions.NewGraphScope(g)
	if err != nil {
		return nil, fmt.Errorf("snapshot graph: %w", err)
	}

	findings := []Finding{}
	for _, r := range rules {
		engine, err := l.ruleEngine(r)
		if err != nil {
			return nil, err
		}
		severity := r.Severity
		if severity == "" {
			severity = SeverityWarning
		}

		for i := 0; i < scope.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data := scope.NodeData(i)
			out, err := engine.Evaluate(ctx, r.Expression, data)
			if err != nil {
				return nil, ruleError(r, err)
			}
			ok, isBool := out.(bool)
			if !isBool {
				return nil, schema.NewErrorf(schema.ErrCodeExpression,
					"rule %s must yield a boolean, got %T", r.Name, out).
					WithDetails(map[string]any{"rule": r.Name})
			}
			if ok {
				continue
			}
			msg, err := message(r, data)
			if err != nil {
				return nil, ruleError(r, err)
			}
			findings = append(findings, Finding{Rule: r.Name, NodeID: scope.NodeID(i), Severity: severity, Message: msg})
		}
	}
	return findings, nil
}

func (l *Linter) ruleEngine(r Rule) (expressions.Engine, error) {
	switch r.Engine {
	case "cel", "expr":
		return l.engines.Get(r.Engine)
	}
	return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
		"rule %s: engine must be cel or expr, got %q", r.Name, r.Engine)
}

func message(r Rule, data map[string]any) (string, error) {
	if r.Message == "" {
		return fmt.Sprintf("rule %s failed", r.Name), nil
	}
	return expressions.Interpolate(r.Message, data)
}

func ruleError(r Rule, err error) error {
	var se *schema.Error
	if errors.As(err, &se) {
		details := map[string]any{"rule": r.Name}
		for k, v := range se.Details {
			details[k] = v
		}
		return se.WithDetails(details)
	}
	return fmt.Errorf("rule %s: %w", r.Name, err)
}

// Marks reduces findings to one overlay per node, keeping the most severe
// finding.
func Marks(findings []Finding) map[string]diagram.Mark {
	marks := make(map[string]diagram.Mark)
	for _, f := range findings {
		if cur, ok := marks[f.NodeID]; ok && severityRank[cur.Severity] >= severityRank[f.Severity] {
			continue
		}
		marks[f.NodeID] = diagram.Mark{Severity: f.Severity, Message: f.Message}
	}
	return marks
}
