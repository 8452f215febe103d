// Package editor applies interactive edits to a parsed use-case graph. The
// relation kind used for new edges is state of the Session, not of the
// package, so concurrent sessions never observe each other's selection.
package editor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/ucdiagram/internal/plantuml"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// Session owns a working copy of a graph. A Session is not safe for
// concurrent use.
type Session struct {
	graph    schema.Graph
	relation schema.RelationKind
}

// NewSession starts a session on a copy of g with association selected.
func NewSession(g schema.Graph) *Session {
	return &Session{graph: cloneGraph(g), relation: schema.RelationAssociation}
}

// Graph returns a copy of the current graph.
func (s *Session) Graph() schema.Graph {
	return cloneGraph(s.graph)
}

// Relation returns the kind used by Connect.
func (s *Session) Relation() schema.RelationKind {
	return s.relation
}

// SelectRelation changes the kind used by subsequent Connect calls.
func (s *Session) SelectRelation(kind schema.RelationKind) error {
	if !kind.Valid() {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown relation kind %q", kind)
	}
	s.relation = kind
	return nil
}

// Connect adds an edge of the selected relation kind from sourceID to
// targetID.
func (s *Session) Connect(sourceID, targetID string) (schema.Edge, error) {
	src, err := s.connectable(sourceID)
	if err != nil {
		return schema.Edge{}, err
	}
	tgt, err := s.connectable(targetID)
	if err != nil {
		return schema.Edge{}, err
	}
	if sourceID == targetID {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeInvalidInput, "cannot connect %s to itself", sourceID)
	}

	edge := newEdge(*src, *tgt, s.relation)
	if s.graph.Edge(edge.ID) != nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeConflict, "edge %s already exists", edge.ID)
	}
	s.graph.Edges = append(s.graph.Edges, edge)
	return edge, nil
}

// Retype changes the relation kind of an edge. The edge id changes with it.
func (s *Session) Retype(edgeID string, kind schema.RelationKind) (schema.Edge, error) {
	if !kind.Valid() {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown relation kind %q", kind)
	}
	e := s.graph.Edge(edgeID)
	if e == nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeNotFound, "edge %s not found", edgeID)
	}
	if e.Relation == kind {
		return *e, nil
	}
	src, tgt := s.graph.Node(e.SourceID), s.graph.Node(e.TargetID)
	if src == nil || tgt == nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeValidation, "edge %s has a missing endpoint", edgeID)
	}

	retyped := newEdge(*src, *tgt, kind)
	if s.graph.Edge(retyped.ID) != nil {
		return schema.Edge{}, schema.NewErrorf(schema.ErrCodeConflict, "edge %s already exists", retyped.ID)
	}
	*e = retyped
	return retyped, nil
}

// RemoveEdge deletes an edge.
func (s *Session) RemoveEdge(edgeID string) error {
	for i, e := range s.graph.Edges {
		if e.ID == edgeID {
			s.graph.Edges = append(s.graph.Edges[:i], s.graph.Edges[i+1:]...)
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "edge %s not found", edgeID)
}

// RemoveNode deletes a node and every edge touching it. Removing a package
// releases its members.
func (s *Session) RemoveNode(nodeID string) error {
	idx := -1
	for i, n := range s.graph.Nodes {
		if n.ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID)
	}
	s.graph.Nodes = append(s.graph.Nodes[:idx], s.graph.Nodes[idx+1:]...)

	for i := range s.graph.Nodes {
		if s.graph.Nodes[i].ContainerID == nodeID {
			s.graph.Nodes[i].ContainerID = ""
		}
	}
	kept := s.graph.Edges[:0]
	for _, e := range s.graph.Edges {
		if e.SourceID != nodeID && e.TargetID != nodeID {
			kept = append(kept, e)
		}
	}
	s.graph.Edges = kept
	s.refreshHandles()
	return nil
}

// MoveNode places a node at pos. Moving a package moves its members by the
// same offset. Edge handles are recomputed.
func (s *Session) MoveNode(nodeID string, pos schema.Position) error {
	n := s.graph.Node(nodeID)
	if n == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID)
	}
	dx, dy := pos.X-n.Position.X, pos.Y-n.Position.Y
	n.Position = pos
	if n.Kind == schema.NodeKindPackage {
		for i := range s.graph.Nodes {
			if s.graph.Nodes[i].ContainerID == nodeID {
				s.graph.Nodes[i].Position.X += dx
				s.graph.Nodes[i].Position.Y += dy
			}
		}
	}
	s.refreshHandles()
	return nil
}

// AddNode creates an actor, use case or empty package at pos. Labels must be
// unique across actors and use cases.
func (s *Session) AddNode(kind schema.NodeKind, label string, pos schema.Position) (schema.Node, error) {
	if !kind.Valid() {
		return schema.Node{}, schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown node kind %q", kind)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return schema.Node{}, schema.NewError(schema.ErrCodeInvalidInput, "label is required")
	}
	if kind != schema.NodeKindPackage {
		for _, n := range s.graph.Nodes {
			if n.Kind != schema.NodeKindPackage && n.Label == label {
				return schema.Node{}, schema.NewErrorf(schema.ErrCodeConflict, "label %q is already used by %s", label, n.ID)
			}
		}
	}

	node := schema.Node{ID: s.nextID(kind), Kind: kind, Label: label, Position: pos}
	if kind == schema.NodeKindPackage {
		l := plantuml.DefaultLayout()
		node.Size = &schema.Size{
			Width:  l.UseCaseWidth + 2*l.PackagePadding,
			Height: l.PackageHeader + l.PackagePadding,
		}
	}
	s.graph.Nodes = append(s.graph.Nodes, node)
	return node, nil
}

// Contain moves a use case into a package, or out of any package when
// packageID is empty.
func (s *Session) Contain(useCaseID, packageID string) error {
	uc := s.graph.Node(useCaseID)
	if uc == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", useCaseID)
	}
	if uc.Kind != schema.NodeKindUseCase {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "node %s is not a use case", useCaseID)
	}
	if packageID != "" {
		pkg := s.graph.Node(packageID)
		if pkg == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", packageID)
		}
		if pkg.Kind != schema.NodeKindPackage {
			return schema.NewErrorf(schema.ErrCodeInvalidInput, "node %s is not a package", packageID)
		}
	}
	uc.ContainerID = packageID
	return nil
}

func (s *Session) connectable(id string) (*schema.Node, error) {
	n := s.graph.Node(id)
	if n == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
	}
	if n.Kind == schema.NodeKindPackage {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "node %s is a package and cannot be connected", id)
	}
	return n, nil
}

// nextID returns {kind}_{n} with n above every existing id of that kind.
func (s *Session) nextID(kind schema.NodeKind) string {
	prefix := string(kind) + "_"
	highest := 0
	for _, n := range s.graph.Nodes {
		if !strings.HasPrefix(n.ID, prefix) {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimPrefix(n.ID, prefix)); err == nil && v > highest {
			highest = v
		}
	}
	return fmt.Sprintf("%s%d", prefix, highest+1)
}

// refreshHandles recomputes handles of geometry-dependent edges.
func (s *Session) refreshHandles() {
	for i := range s.graph.Edges {
		e := &s.graph.Edges[i]
		src, tgt := s.graph.Node(e.SourceID), s.graph.Node(e.TargetID)
		if src == nil || tgt == nil {
			continue
		}
		e.SourceHandle, e.TargetHandle = plantuml.HandlesFor(e.Relation, *src, *tgt)
	}
}

func newEdge(src, tgt schema.Node, kind schema.RelationKind) schema.Edge {
	sh, th := plantuml.HandlesFor(kind, src, tgt)
	return schema.Edge{
		ID:           schema.EdgeID(src.ID, tgt.ID, kind),
		SourceID:     src.ID,
		TargetID:     tgt.ID,
		Relation:     kind,
		SourceHandle: sh,
		TargetHandle: th,
		Style:        schema.StyleFor(kind),
	}
}

func cloneGraph(g schema.Graph) schema.Graph {
	out := schema.Graph{
		Nodes: make([]schema.Node, len(g.Nodes)),
		Edges: make([]schema.Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	for i, n := range out.Nodes {
		if n.Size != nil {
			size := *n.Size
			out.Nodes[i].Size = &size
		}
	}
	for i, e := range out.Edges {
		if e.Style != nil {
			style := *e.Style
			out.Edges[i].Style = &style
		}
	}
	return out
}
