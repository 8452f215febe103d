package schema

// NodeKind classifies a use-case diagram element.
type NodeKind string

const (
	NodeKindActor   NodeKind = "actor"
	NodeKindUseCase NodeKind = "usecase"
	NodeKindPackage NodeKind = "package"
)

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindActor, NodeKindUseCase, NodeKindPackage:
		return true
	}
	return false
}

// RelationKind classifies an edge. The text parser only emits association and
// include; the remaining kinds come from interactive editing.
type RelationKind string

const (
	RelationAssociation    RelationKind = "association"
	RelationInclude        RelationKind = "include"
	RelationExtend         RelationKind = "extend"
	RelationGeneralization RelationKind = "generalization"
	RelationComposition    RelationKind = "composition"
	RelationAggregation    RelationKind = "aggregation"
)

// RelationKinds lists every relation kind in display order.
var RelationKinds = []RelationKind{
	RelationAssociation,
	RelationInclude,
	RelationExtend,
	RelationGeneralization,
	RelationComposition,
	RelationAggregation,
}

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	for _, known := range RelationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Handle is the side of a node an edge attaches to.
type Handle string

const (
	HandleLeft  Handle = "left"
	HandleRight Handle = "right"
)

// Position is a point in layout units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the extent of a package node in layout units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is one visual element of a use-case diagram.
type Node struct {
	ID          string   `json:"id"`
	Kind        NodeKind `json:"kind"`
	Label       string   `json:"label"`
	Position    Position `json:"position"`
	Size        *Size    `json:"size,omitempty"`
	ContainerID string   `json:"containerId,omitempty"`
}

// EdgeStyle carries presentation hints for non-default relation kinds.
type EdgeStyle struct {
	Dash   string `json:"dash,omitempty"`
	Marker string `json:"marker,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Edge is one relationship between two nodes.
type Edge struct {
	ID           string       `json:"id"`
	SourceID     string       `json:"sourceId"`
	TargetID     string       `json:"targetId"`
	Relation     RelationKind `json:"relationKind"`
	SourceHandle Handle       `json:"sourceHandle"`
	TargetHandle Handle       `json:"targetHandle"`
	Style        *EdgeStyle   `json:"style,omitempty"`
}

// Graph is the parser's output contract: nodes and edges of one diagram.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Edge returns the edge with the given id, or nil.
func (g *Graph) Edge(id string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i]
		}
	}
	return nil
}

// EdgeID builds the deterministic edge id for a relation between two nodes.
// Associations use the bare pair; every other kind appends its name so that
// different relations between the same nodes never collide.
func EdgeID(sourceID, targetID string, kind RelationKind) string {
	id := "e" + sourceID + "-" + targetID
	if kind != "" && kind != RelationAssociation {
		id += "-" + string(kind)
	}
	return id
}

// Edge marker names understood by the canvas.
const (
	MarkerArrow         = "arrow"
	MarkerArrowClosed   = "arrowclosed"
	MarkerTriangle      = "triangle"
	MarkerDiamondFilled = "diamond-filled"
	MarkerDiamondOpen   = "diamond-open"
)

// DashPattern is the stroke pattern of dashed relations.
const DashPattern = "5,5"

// StyleFor returns the presentation hints for kind, or nil when the kind is
// drawn as a plain solid line.
func StyleFor(kind RelationKind) *EdgeStyle {
	switch kind {
	case RelationInclude:
		return &EdgeStyle{Dash: DashPattern, Marker: MarkerArrowClosed, Label: "«include»"}
	case RelationExtend:
		return &EdgeStyle{Dash: DashPattern, Marker: MarkerArrowClosed, Label: "«extend»"}
	case RelationGeneralization:
		return &EdgeStyle{Marker: MarkerTriangle}
	case RelationComposition:
		return &EdgeStyle{Marker: MarkerDiamondFilled}
	case RelationAggregation:
		return &EdgeStyle{Marker: MarkerDiamondOpen}
	}
	return nil
}

// FixedHandles reports whether kind always attaches from the source's right
// side to the target's left side regardless of geometry.
func FixedHandles(kind RelationKind) bool {
	return kind == RelationInclude || kind == RelationExtend
}
