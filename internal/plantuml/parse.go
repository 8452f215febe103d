package plantuml

import "github.com/rendis/ucdiagram/pkg/schema"

// Result is the outcome of parsing one diagram text.
type Result struct {
	Graph  schema.Graph
	Index  NameIndex
	Issues []Issue
}

type options struct {
	layout Layout
}

// Option configures Parse.
type Option func(*options)

// WithLayout replaces the default ColumnLayout.
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// Parse runs node and edge extraction over text. It never fails: fragments
// that are not recognized are skipped and, when malformed, reported in
// Result.Issues. Every call builds its own state, so concurrent calls are
// independent.
func Parse(text string, opts ...Option) *Result {
	o := options{layout: DefaultLayout()}
	for _, opt := range opts {
		opt(&o)
	}

	doc := Read(text)
	nodes, index, _ := extractNodes(doc, o.layout)
	edges := extractEdges(doc.Relations, nodes, index)
	return &Result{
		Graph:  schema.Graph{Nodes: nodes, Edges: edges},
		Index:  index,
		Issues: doc.Issues,
	}
}
