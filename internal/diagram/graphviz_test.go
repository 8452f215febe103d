package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImageShop(t *testing.T) {
	png, err := RenderImage(context.Background(), shopModel(t))
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// Verify PNG magic bytes: 0x89 P N G.
	assert.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageSVG(t *testing.T) {
	svg, err := RenderImageFormat(context.Background(), shopModel(t), ImageSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "Checkout")
}

func TestRenderImageAllKindsAndMarks(t *testing.T) {
	model := &DiagramModel{
		Title:  "Kinds",
		Actors: []*Node{{ID: "actor_1", Label: "A", Kind: "actor", Mark: &Mark{Severity: "error"}}},
		UseCases: []*Node{
			{ID: "usecase_1", Label: "U1", Kind: "usecase", Mark: &Mark{Severity: "warning"}},
			{ID: "usecase_2", Label: "U2", Kind: "usecase", Mark: &Mark{Severity: "info"}},
		},
		Edges: []Edge{
			{From: "actor_1", To: "usecase_1", Kind: "association"},
			{From: "usecase_1", To: "usecase_2", Kind: "extend", Label: "«extend»"},
			{From: "usecase_2", To: "usecase_1", Kind: "generalization"},
			{From: "actor_1", To: "usecase_2", Kind: "composition"},
			{From: "usecase_2", To: "actor_1", Kind: "aggregation"},
		},
	}
	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, byte(0x89), png[0])
}

func TestRenderImageEmpty(t *testing.T) {
	png, err := RenderImage(context.Background(), &DiagramModel{})
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
