package diagram

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// RenderPlantUML renders a DiagramModel back to PlantUML use-case text.
// Associations leaving a right-column actor are written with `<--` so the
// actor keeps its column when the text is parsed again.
func RenderPlantUML(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("@startuml\n")
	if model.Title != "" && model.Title != DefaultTitle {
		b.WriteString(fmt.Sprintf("title %s\n", model.Title))
	}
	b.WriteString("left to right direction\n")

	if len(model.Actors) > 0 {
		b.WriteByte('\n')
	}
	for _, node := range model.Actors {
		b.WriteString(fmt.Sprintf("actor %s\n", plantQuote(node.Label)))
	}

	for _, sg := range model.Packages {
		b.WriteString(fmt.Sprintf("\nrectangle %s {\n", plantBlockName(sg.Label)))
		for _, node := range sg.Nodes {
			b.WriteString(fmt.Sprintf("  usecase %s\n", plantQuote(node.Label)))
		}
		b.WriteString("}\n")
	}

	if len(model.UseCases) > 0 {
		b.WriteByte('\n')
	}
	for _, node := range model.UseCases {
		b.WriteString(fmt.Sprintf("usecase %s\n", plantQuote(node.Label)))
	}

	if len(model.Edges) > 0 {
		b.WriteByte('\n')
	}
	for _, edge := range model.Edges {
		b.WriteString(plantRelation(model, edge))
		b.WriteByte('\n')
	}

	b.WriteString("@enduml\n")
	return b.String()
}

func plantRelation(model *DiagramModel, edge Edge) string {
	from := plantQuote(model.labelOf(edge.From))
	to := plantQuote(model.labelOf(edge.To))

	switch edge.Kind {
	case schema.RelationInclude:
		return fmt.Sprintf("%s .> %s : include", from, to)
	case schema.RelationExtend:
		return fmt.Sprintf("%s .> %s : extends", from, to)
	case schema.RelationGeneralization:
		return fmt.Sprintf("%s --|> %s", from, to)
	case schema.RelationComposition:
		return fmt.Sprintf("%s *-- %s", to, from)
	case schema.RelationAggregation:
		return fmt.Sprintf("%s o-- %s", to, from)
	}
	if n := model.findNode(edge.From); n != nil && n.Kind == schema.NodeKindActor && n.Right {
		return fmt.Sprintf("%s <-- %s", to, from)
	}
	return fmt.Sprintf("%s --> %s", from, to)
}

// plantQuote quotes a name. Names cannot contain a double quote, so any are
// replaced with a single quote.
func plantQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}

// plantBlockName writes identifier-like names bare and quotes everything else.
func plantBlockName(s string) string {
	if s == "" {
		return plantQuote(s)
	}
	for i, r := range s {
		if unicode.IsLetter(r) || r == '_' || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return plantQuote(s)
	}
	return s
}
