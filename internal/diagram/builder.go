package diagram

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// DefaultTitle is used when the caller does not name the diagram.
const DefaultTitle = "Use Case Diagram"

// Build constructs a DiagramModel from a graph and optional lint marks keyed
// by node id. Package members are grouped under their package; nodes within a
// group keep their vertical order. Actors positioned right of the use-case
// column are flagged Right.
func Build(g *schema.Graph, marks map[string]Mark) (*DiagramModel, error) {
	model := &DiagramModel{Title: DefaultTitle}

	packages := make(map[string]*SubGraph)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind == schema.NodeKindPackage {
			sg := &SubGraph{ID: n.ID, Label: n.Label}
			packages[n.ID] = sg
			model.Packages = append(model.Packages, sg)
		}
	}

	columnX, hasColumn := useCaseColumn(g.Nodes)
	known := make(map[string]bool, len(g.Nodes))
	ys := make(map[string]float64, len(g.Nodes))

	for i := range g.Nodes {
		n := &g.Nodes[i]
		known[n.ID] = true
		ys[n.ID] = n.Position.Y
		if n.Kind == schema.NodeKindPackage {
			continue
		}
		node := &Node{ID: n.ID, Label: n.Label, Kind: n.Kind}
		if m, ok := marks[n.ID]; ok {
			node.Mark = &m
		}

		switch n.Kind {
		case schema.NodeKindActor:
			node.Right = hasColumn && n.Position.X > columnX
			model.Actors = append(model.Actors, node)
		case schema.NodeKindUseCase:
			if n.ContainerID == "" {
				model.UseCases = append(model.UseCases, node)
				break
			}
			sg, ok := packages[n.ContainerID]
			if !ok {
				return nil, fmt.Errorf("diagram: node %s: container %q is not a package", n.ID, n.ContainerID)
			}
			sg.Nodes = append(sg.Nodes, node)
		default:
			return nil, fmt.Errorf("diagram: node %s: unknown kind %q", n.ID, n.Kind)
		}
	}

	byY := func(a, b *Node) int { return cmp.Compare(ys[a.ID], ys[b.ID]) }
	slices.SortStableFunc(model.Actors, func(a, b *Node) int {
		if a.Right != b.Right {
			if a.Right {
				return 1
			}
			return -1
		}
		return byY(a, b)
	})
	for _, sg := range model.Packages {
		slices.SortStableFunc(sg.Nodes, byY)
	}
	slices.SortStableFunc(model.UseCases, byY)

	for _, e := range g.Edges {
		if !known[e.SourceID] || !known[e.TargetID] {
			return nil, fmt.Errorf("diagram: edge %s references an unknown node", e.ID)
		}
		edge := Edge{From: e.SourceID, To: e.TargetID, Kind: e.Relation}
		if e.Style != nil {
			edge.Label = e.Style.Label
		}
		model.Edges = append(model.Edges, edge)
	}

	model.Rows = buildRows(model)
	return model, nil
}

// useCaseColumn returns the smallest x of any use case or package.
func useCaseColumn(nodes []schema.Node) (float64, bool) {
	found := false
	var x float64
	for _, n := range nodes {
		if n.Kind == schema.NodeKindActor {
			continue
		}
		if !found || n.Position.X < x {
			x, found = n.Position.X, true
		}
	}
	return x, found
}

func buildRows(model *DiagramModel) [][]string {
	var rows [][]string
	add := func(nodes []*Node) {
		if len(nodes) == 0 {
			return
		}
		row := make([]string, len(nodes))
		for i, n := range nodes {
			row[i] = n.ID
		}
		rows = append(rows, row)
	}
	add(model.Actors)
	for _, sg := range model.Packages {
		add(sg.Nodes)
	}
	add(model.UseCases)
	return rows
}

// findNode looks up a node by id among actors, package members and use cases.
func (m *DiagramModel) findNode(id string) *Node {
	for _, n := range m.AllNodes() {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// labelOf returns the label for id, falling back to the id itself.
func (m *DiagramModel) labelOf(id string) string {
	if n := m.findNode(id); n != nil && n.Label != "" {
		return n.Label
	}
	if sg := m.findPackage(id); sg != nil {
		return sg.Label
	}
	return id
}

func (m *DiagramModel) findPackage(id string) *SubGraph {
	for _, sg := range m.Packages {
		if sg.ID == id {
			return sg
		}
	}
	return nil
}
