package expressions

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// GraphScope is a frozen, JSON-shaped snapshot of a graph from which
// evaluation data is built. The snapshot is never mutated, so one scope may
// serve many concurrent evaluations.
type GraphScope struct {
	graph   map[string]any
	nodes   []map[string]any
	edgesOf map[string][]any
}

// NewGraphScope snapshots g. Field names follow the graph's JSON form
// (node.kind, node.containerId, edge.relationKind, ...).
func NewGraphScope(g schema.Graph) (*GraphScope, error) {
	doc, err := toDoc(g)
	if err != nil {
		return nil, err
	}
	graph, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph snapshot is %T, want object", doc)
	}

	s := &GraphScope{graph: graph, edgesOf: make(map[string][]any)}
	nodes, _ := graph["nodes"].([]any)
	for _, n := range nodes {
		if m, ok := n.(map[string]any); ok {
			s.nodes = append(s.nodes, m)
		}
	}
	edges, _ := graph["edges"].([]any)
	for _, e := range edges {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		src, _ := m["sourceId"].(string)
		tgt, _ := m["targetId"].(string)
		s.edgesOf[src] = append(s.edgesOf[src], m)
		if tgt != src {
			s.edgesOf[tgt] = append(s.edgesOf[tgt], m)
		}
	}
	return s, nil
}

// Graph returns a deep copy of the whole snapshot, suitable as jq input.
func (s *GraphScope) Graph() map[string]any {
	return deepCopyMap(s.graph)
}

// Len returns the number of nodes.
func (s *GraphScope) Len() int { return len(s.nodes) }

// NodeID returns the id of the i-th node.
func (s *GraphScope) NodeID(i int) string {
	id, _ := s.nodes[i]["id"].(string)
	return id
}

// NodeData returns the variables a per-node rule sees: node, degree, edges
// and graph. node is a private copy; graph is shared and must be treated as
// read-only.
func (s *GraphScope) NodeData(i int) map[string]any {
	n := s.nodes[i]
	id, _ := n["id"].(string)
	edges := s.edgesOf[id]
	if edges == nil {
		edges = []any{}
	}
	return map[string]any{
		"node":   deepCopyMap(n),
		"degree": int64(len(edges)),
		"edges":  edges,
		"graph":  s.graph,
	}
}

// toDoc round-trips v through JSON so that structs become maps and slices.
func toDoc(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
