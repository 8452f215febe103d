package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	ImagePNG ImageFormat = "png"
	ImageSVG ImageFormat = "svg"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return RenderImageFormat(ctx, model, ImagePNG)
}

// RenderImageFormat renders a DiagramModel with graphviz in the given format.
// Packages become dashed clusters; actors sit on either side of the flow.
func RenderImageFormat(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat := graphviz.PNG
	if format == ImageSVG {
		gvFormat = graphviz.SVG
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node)
	addNode := func(parent *cgraph.Graph, node *Node) error {
		gvNode, nErr := parent.CreateNodeByName(node.ID)
		if nErr != nil {
			return fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
		return nil
	}

	for _, node := range model.Actors {
		if err := addNode(graph, node); err != nil {
			return nil, err
		}
	}

	// Packages as clusters.
	for _, sg := range model.Packages {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + sg.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create cluster %s: %w", sg.ID, subErr)
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, node := range sg.Nodes {
			if err := addNode(sub, node); err != nil {
				return nil, err
			}
		}
	}

	for _, node := range model.UseCases {
		if err := addNode(graph, node); err != nil {
			return nil, err
		}
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		applyEdgeStyle(e, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and lint mark.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case schema.NodeKindActor:
		gvNode.SetShape(cgraph.BoxShape)
	default:
		gvNode.SetShape(cgraph.EllipseShape)
	}

	if node.Mark != nil {
		applyMarkColor(gvNode, node.Mark.Severity)
	}
}

// applyMarkColor sets fill color based on lint severity.
func applyMarkColor(gvNode *cgraph.Node, severity string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch severity {
	case "error":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "warning":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	}
}

// applyEdgeStyle maps relation kinds to stroke and arrowhead.
func applyEdgeStyle(e *cgraph.Edge, edge Edge) {
	if edge.Label != "" {
		e.SetLabel(edge.Label)
	}
	if edge.Dashed() {
		e.SetStyle(cgraph.DashedEdgeStyle)
	}
	switch edge.Kind {
	case schema.RelationAssociation:
		e.SetArrowHead(cgraph.VeeArrow)
	case schema.RelationGeneralization:
		e.SetArrowHead(cgraph.EmptyArrow)
	case schema.RelationComposition:
		e.SetArrowHead(cgraph.DiamondArrow)
	case schema.RelationAggregation:
		e.SetArrowHead(cgraph.ODiamondArrow)
	}
}
