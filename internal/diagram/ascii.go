package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// markTag returns a short ASCII indicator for a lint severity.
func markTag(severity string) string {
	switch severity {
	case "error":
		return "[ERR]"
	case "warning":
		return "[WARN]"
	case "info":
		return "[INFO]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based diagram: one row of
// boxes per group (actors, each package, standalone use cases) followed by
// the relation list.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	rowIdx := 0
	section := func(heading string, nodes []*Node) {
		if len(nodes) == 0 {
			return
		}
		if rowIdx > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(heading + "\n")
		boxes := make([]asciiBox, 0, len(nodes))
		for _, node := range nodes {
			boxes = append(boxes, makeBox(node))
		}
		renderBoxRow(&b, boxes)
		rowIdx++
	}

	section("Actors", model.Actors)
	for _, sg := range model.Packages {
		section(fmt.Sprintf("[%s]", sg.Label), sg.Nodes)
		if len(sg.Nodes) == 0 {
			if rowIdx > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(fmt.Sprintf("[%s] (empty)\n", sg.Label))
			rowIdx++
		}
	}
	section("Use cases", model.UseCases)

	if len(model.Edges) > 0 {
		b.WriteString("\nRelations\n")
		for _, edge := range model.Edges {
			renderEdge(&b, model, edge)
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node. Use cases get rounded corners.
func makeBox(node *Node) asciiBox {
	contentLines := []string{node.Label}
	if node.Mark != nil {
		if tag := markTag(node.Mark.Severity); tag != "" {
			contentLines = append(contentLines, tag)
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	tl, tr, bl, br := "┌", "┐", "└", "┘"
	if node.Kind == schema.NodeKindUseCase {
		tl, tr, bl, br = "╭", "╮", "╰", "╯"
	}

	var lines []string
	lines = append(lines, tl+strings.Repeat("─", width-2)+tr)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bl+strings.Repeat("─", width-2)+br)

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderEdge writes one relation line.
func renderEdge(b *strings.Builder, model *DiagramModel, edge Edge) {
	arrow := "──→"
	if edge.Dashed() {
		arrow = "╌╌→"
	}
	suffix := ""
	switch {
	case edge.Label != "":
		suffix = " " + edge.Label
	case edge.Kind != schema.RelationAssociation && edge.Kind != "":
		suffix = " (" + string(edge.Kind) + ")"
	}
	b.WriteString(fmt.Sprintf("  %s %s %s%s\n", model.labelOf(edge.From), arrow, model.labelOf(edge.To), suffix))
}
