package plantuml

import "github.com/rendis/ucdiagram/pkg/schema"

// Side is the horizontal column an actor is placed in.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// ActorSlot places one actor node.
type ActorSlot struct {
	Node int // index into the node slice
	Side Side
}

// PackageSlot places one package node and the use cases declared inside it,
// in declaration order.
type PackageSlot struct {
	Node    int
	Members []int
}

// Plan is the layout-relevant structure of an extraction: which nodes are
// actors (and on which side), which use cases belong to which package, and
// which use cases stand alone. Indexes refer to the node slice handed to
// Layout.Arrange.
type Plan struct {
	Actors   []ActorSlot
	Packages []PackageSlot
	UseCases []int

	// Included holds the labels that are the target of an include relation.
	// ColumnLayout ignores it.
	Included map[string]struct{}
}

// Layout assigns initial positions (and package sizes) to extracted nodes.
// Implementations must be deterministic for a given plan.
type Layout interface {
	Arrange(nodes []schema.Node, plan *Plan)
}

// ColumnLayout places actors in a left or right column and every use case in a
// single middle column. Packages enclose their use cases and are stacked
// top-down in block order; standalone use cases continue below the last
// package. The actor column and the use-case column each start at StartY and
// advance independently, so actors line up with the first use cases.
type ColumnLayout struct {
	StartY         float64
	RowPitch       float64
	ActorLeftX     float64
	ActorRightX    float64
	UseCaseX       float64
	UseCaseWidth   float64
	PackagePadding float64
	PackageHeader  float64
	PackageGap     float64
}

// DefaultLayout returns the ColumnLayout used when no layout is configured.
func DefaultLayout() ColumnLayout {
	return ColumnLayout{
		StartY:         50,
		RowPitch:       120,
		ActorLeftX:     50,
		ActorRightX:    700,
		UseCaseX:       350,
		UseCaseWidth:   160,
		PackagePadding: 40,
		PackageHeader:  40,
		PackageGap:     40,
	}
}

// Arrange implements Layout.
func (l ColumnLayout) Arrange(nodes []schema.Node, plan *Plan) {
	y := l.StartY
	for _, slot := range plan.Actors {
		x := l.ActorLeftX
		if slot.Side == SideRight {
			x = l.ActorRightX
		}
		nodes[slot.Node].Position = schema.Position{X: x, Y: y}
		y += l.RowPitch
	}

	// Use cases get their own cursor rather than continuing below the actors.
	y = l.StartY
	for _, pkg := range plan.Packages {
		top := y
		for i, m := range pkg.Members {
			nodes[m].Position = schema.Position{
				X: l.UseCaseX,
				Y: top + l.PackageHeader + float64(i)*l.RowPitch,
			}
		}
		height := l.PackageHeader + float64(len(pkg.Members))*l.RowPitch + l.PackagePadding
		nodes[pkg.Node].Position = schema.Position{X: l.UseCaseX - l.PackagePadding, Y: top}
		nodes[pkg.Node].Size = &schema.Size{
			Width:  l.UseCaseWidth + 2*l.PackagePadding,
			Height: height,
		}
		y = top + height + l.PackageGap
	}

	for _, u := range plan.UseCases {
		nodes[u].Position = schema.Position{X: l.UseCaseX, Y: y}
		y += l.RowPitch
	}
}
