package plantuml

import (
	"math"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// HandleOffset is the horizontal distance from a node's position to its
// left and right anchors.
const HandleOffset = 10.0

var handleOrder = [...]schema.Handle{schema.HandleLeft, schema.HandleRight}

func anchor(n schema.Node, h schema.Handle) (float64, float64) {
	if h == schema.HandleLeft {
		return n.Position.X - HandleOffset, n.Position.Y
	}
	return n.Position.X + HandleOffset, n.Position.Y
}

// ClosestHandles returns the pair of sides (one on a, one on b) whose anchors
// are nearest to each other. Only stored positions are used. On ties the first
// pair in left-before-right order wins.
func ClosestHandles(a, b schema.Node) (schema.Handle, schema.Handle) {
	bestA, bestB := schema.HandleLeft, schema.HandleLeft
	best := math.Inf(1)
	for _, ha := range handleOrder {
		ax, ay := anchor(a, ha)
		for _, hb := range handleOrder {
			bx, by := anchor(b, hb)
			if d := math.Hypot(ax-bx, ay-by); d < best {
				best, bestA, bestB = d, ha, hb
			}
		}
	}
	return bestA, bestB
}

// HandlesFor returns the source and target handles for an edge of kind.
// Include and extend always leave the source on the right and enter the
// target on the left; other kinds use ClosestHandles.
func HandlesFor(kind schema.RelationKind, src, tgt schema.Node) (schema.Handle, schema.Handle) {
	if schema.FixedHandles(kind) {
		return schema.HandleRight, schema.HandleLeft
	}
	return ClosestHandles(src, tgt)
}
