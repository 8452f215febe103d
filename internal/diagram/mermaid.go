package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("flowchart LR\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Actors {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, sg := range model.Packages {
		b.WriteString(fmt.Sprintf("    subgraph %s[%q]\n", mermaidSafeID(sg.ID), mermaidEscapeLabel(sg.Label)))
		for _, node := range sg.Nodes {
			b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(node)))
		}
		b.WriteString("    end\n")
	}

	for _, node := range model.UseCases {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		b.WriteString(fmt.Sprintf("    %s %s %s\n",
			mermaidSafeID(edge.From), mermaidArrow(edge), mermaidSafeID(edge.To)))
	}

	// Lint class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef info fill:#1a5276,stroke:#0e3a52,color:#fff\n")

	for _, node := range model.AllNodes() {
		if node.Mark == nil {
			continue
		}
		if cls := mermaidMarkClass(node.Mark.Severity); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)

	switch node.Kind {
	case schema.NodeKindActor:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // use case
		return fmt.Sprintf("%s([%q])", id, label)
	}
}

// mermaidArrow returns the link syntax for an edge.
func mermaidArrow(edge Edge) string {
	switch {
	case edge.Dashed() && edge.Label != "":
		return fmt.Sprintf("-.->|%q|", edge.Label)
	case edge.Dashed():
		return "-.->"
	case edge.Kind == schema.RelationGeneralization,
		edge.Kind == schema.RelationComposition,
		edge.Kind == schema.RelationAggregation:
		return fmt.Sprintf("==>|%s|", edge.Kind)
	default:
		return "-->"
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes characters that would end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// mermaidMarkClass maps a lint severity to a Mermaid class name.
func mermaidMarkClass(severity string) string {
	switch severity {
	case "error", "warning", "info":
		return severity
	default:
		return ""
	}
}
