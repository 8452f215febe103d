package diagram

import (
	"testing"

	"github.com/rendis/ucdiagram/internal/plantuml"
	"github.com/rendis/ucdiagram/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPlantUML(t *testing.T) {
	text := RenderPlantUML(shopModel(t))

	assert.Contains(t, text, "@startuml\n")
	assert.Contains(t, text, `actor "Customer"`)
	assert.Contains(t, text, "rectangle Shop {\n  usecase \"Browse\"")
	assert.Contains(t, text, `"Customer" --> "Browse"`)
	// Warehouse is a right-column actor.
	assert.Contains(t, text, `"Pay" <-- "Warehouse"`)
	assert.Contains(t, text, `"Checkout" .> "Pay" : include`)
	assert.NotContains(t, text, "title ")
}

type shape struct {
	Kind      schema.NodeKind
	Container string
}

// summarize reduces a graph to what survives a round trip: labels, kinds,
// containment by package label, and relations by label.
func summarize(g schema.Graph) (map[string]shape, []string) {
	labelOf := make(map[string]string)
	for _, n := range g.Nodes {
		labelOf[n.ID] = n.Label
	}
	nodes := make(map[string]shape)
	for _, n := range g.Nodes {
		nodes[string(n.Kind)+":"+n.Label] = shape{Kind: n.Kind, Container: labelOf[n.ContainerID]}
	}
	var edges []string
	for _, e := range g.Edges {
		edges = append(edges, labelOf[e.SourceID]+" "+string(e.Relation)+" "+labelOf[e.TargetID])
	}
	return nodes, edges
}

func TestRenderPlantUMLRoundTrip(t *testing.T) {
	inputs := []string{
		shopText,
		`rectangle "Online Shop" {
  usecase "Buy"
}
rectangle Empty {
}
actor "Guest"
"Guest" --> "Buy"`,
		"",
	}

	for _, input := range inputs {
		first := plantuml.Parse(input)
		model, err := Build(&first.Graph, nil)
		require.NoError(t, err)

		second := plantuml.Parse(RenderPlantUML(model))
		assert.Empty(t, second.Issues)

		wantNodes, wantEdges := summarize(first.Graph)
		gotNodes, gotEdges := summarize(second.Graph)
		assert.Equal(t, wantNodes, gotNodes)
		assert.ElementsMatch(t, wantEdges, gotEdges)
	}
}

func TestRenderPlantUMLEditorKinds(t *testing.T) {
	model := &DiagramModel{
		Title:    "Editor",
		UseCases: []*Node{{ID: "usecase_1", Label: "A", Kind: "usecase"}, {ID: "usecase_2", Label: "B", Kind: "usecase"}},
		Edges: []Edge{
			{From: "usecase_1", To: "usecase_2", Kind: schema.RelationExtend},
			{From: "usecase_1", To: "usecase_2", Kind: schema.RelationGeneralization},
			{From: "usecase_1", To: "usecase_2", Kind: schema.RelationComposition},
			{From: "usecase_1", To: "usecase_2", Kind: schema.RelationAggregation},
		},
	}
	text := RenderPlantUML(model)
	assert.Contains(t, text, "title Editor\n")
	assert.Contains(t, text, `"A" .> "B" : extends`)
	assert.Contains(t, text, `"A" --|> "B"`)
	assert.Contains(t, text, `"B" *-- "A"`)
	assert.Contains(t, text, `"B" o-- "A"`)

	// none of these are parsed back as relations
	assert.Empty(t, plantuml.Parse(text).Graph.Edges)
}

func TestPlantBlockName(t *testing.T) {
	assert.Equal(t, "Shop", plantBlockName("Shop"))
	assert.Equal(t, "shop_2", plantBlockName("shop_2"))
	assert.Equal(t, `"2shop"`, plantBlockName("2shop"))
	assert.Equal(t, `"Online Shop"`, plantBlockName("Online Shop"))
	assert.Equal(t, `"say 'x'"`, plantQuote(`say "x"`))
}
