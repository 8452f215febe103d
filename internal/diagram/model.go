package diagram

import "github.com/rendis/ucdiagram/pkg/schema"

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Actors   []*Node     // in declaration order, left column first
	UseCases []*Node     // standalone use cases
	Packages []*SubGraph // packages with their member use cases
	Edges    []Edge

	// Rows groups node ids for row-based renderers: the actors, then one row
	// per package, then the standalone use cases. Empty rows are omitted.
	Rows [][]string
}

// Node is one actor or use case.
type Node struct {
	ID    string
	Label string
	Kind  schema.NodeKind
	Right bool // actor placed in the right column
	Mark  *Mark
}

// SubGraph is a package and the use cases it contains.
type SubGraph struct {
	ID    string
	Label string
	Nodes []*Node
}

// Mark carries a lint finding overlay for a node.
type Mark struct {
	Severity string // "error", "warning" or "info"
	Message  string
}

// Edge is one relation between two nodes.
type Edge struct {
	From  string
	To    string
	Kind  schema.RelationKind
	Label string // «include», «extend», or empty
}

// Dashed reports whether the edge is drawn with a dashed stroke.
func (e Edge) Dashed() bool {
	return e.Kind == schema.RelationInclude || e.Kind == schema.RelationExtend
}

// AllNodes returns every actor and use case, including package members.
func (m *DiagramModel) AllNodes() []*Node {
	out := make([]*Node, 0, len(m.Actors)+len(m.UseCases))
	out = append(out, m.Actors...)
	for _, sg := range m.Packages {
		out = append(out, sg.Nodes...)
	}
	return append(out, m.UseCases...)
}
