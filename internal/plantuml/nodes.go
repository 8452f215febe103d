package plantuml

import (
	"fmt"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// NameIndex maps a declared label, exactly as written inside its quotes, to
// the id of the node created for it. Entries are write-once.
type NameIndex map[string]string

// Lookup returns the node id declared for name.
func (ix NameIndex) Lookup(name string) (string, bool) {
	id, ok := ix[name]
	return id, ok
}

// claim records name -> id unless name is already taken.
func (ix NameIndex) claim(name, id string) bool {
	if _, taken := ix[name]; taken {
		return false
	}
	ix[name] = id
	return true
}

// ExtractNodes recognizes actors, rectangle blocks and use cases in text and
// returns the resulting nodes with positions assigned by layout (DefaultLayout
// when nil), plus the label index used to resolve relations.
func ExtractNodes(text string, layout Layout) ([]schema.Node, NameIndex) {
	nodes, index, _ := extractNodes(Read(text), layout)
	return nodes, index
}

type nodeBuilder struct {
	nodes    []schema.Node
	index    NameIndex
	counters map[schema.NodeKind]int
}

func (b *nodeBuilder) nextID(kind schema.NodeKind) string {
	b.counters[kind]++
	return fmt.Sprintf("%s_%d", kind, b.counters[kind])
}

// declare adds an actor or use case node for label. It returns false when the
// label was already declared in any role.
func (b *nodeBuilder) declare(kind schema.NodeKind, label string) (int, bool) {
	if _, seen := b.index[label]; seen {
		return 0, false
	}
	id := b.nextID(kind)
	b.index.claim(label, id)
	b.nodes = append(b.nodes, schema.Node{ID: id, Kind: kind, Label: label})
	return len(b.nodes) - 1, true
}

func extractNodes(doc *Document, layout Layout) ([]schema.Node, NameIndex, *Plan) {
	if layout == nil {
		layout = DefaultLayout()
	}
	b := &nodeBuilder{
		nodes:    []schema.Node{},
		index:    NameIndex{},
		counters: make(map[schema.NodeKind]int),
	}
	plan := &Plan{Included: doc.IncludedNames()}

	sides := actorSides(doc.Relations)
	for _, a := range doc.Actors {
		if i, ok := b.declare(schema.NodeKindActor, a.Name); ok {
			plan.Actors = append(plan.Actors, ActorSlot{Node: i, Side: sides[a.Name]})
		}
	}

	for _, blk := range doc.Blocks {
		var members []int
		for _, uc := range blk.UseCases {
			if i, ok := b.declare(schema.NodeKindUseCase, uc.Name); ok {
				members = append(members, i)
			}
		}
		pkgID := b.nextID(schema.NodeKindPackage)
		b.nodes = append(b.nodes, schema.Node{ID: pkgID, Kind: schema.NodeKindPackage, Label: blk.Name})
		for _, m := range members {
			b.nodes[m].ContainerID = pkgID
		}
		plan.Packages = append(plan.Packages, PackageSlot{Node: len(b.nodes) - 1, Members: members})
	}

	for _, uc := range doc.UseCases {
		if i, ok := b.declare(schema.NodeKindUseCase, uc.Name); ok {
			plan.UseCases = append(plan.UseCases, i)
		}
	}

	layout.Arrange(b.nodes, plan)
	return b.nodes, b.index, plan
}

// actorSides decides which column each name would occupy as an actor. A name
// written on the right of `<--` is the source of that association and goes to
// the right column, unless it is also written on the left of `-->`.
func actorSides(rels []Relation) map[string]Side {
	forwardSources := make(map[string]bool)
	for _, r := range rels {
		if r.Form == FormForward {
			forwardSources[r.Left] = true
		}
	}
	sides := make(map[string]Side)
	for _, r := range rels {
		if r.Form == FormReverse && !forwardSources[r.Right] {
			sides[r.Right] = SideRight
		}
	}
	return sides
}
