package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// validateIncludes reports include relations that do not join two use cases
// and include cycles (Kahn's algorithm). Both are warnings.
func validateIncludes(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	kinds := make(map[string]schema.NodeKind, len(g.Nodes))
	for _, n := range g.Nodes {
		kinds[n.ID] = n.Kind
	}

	// out[id] = use cases included by id.
	out := make(map[string][]string)
	inDegree := make(map[string]int)
	for i, e := range g.Edges {
		if e.Relation != schema.RelationInclude {
			continue
		}
		if kinds[e.SourceID] != schema.NodeKindUseCase || kinds[e.TargetID] != schema.NodeKindUseCase {
			result.AddWarning(fmt.Sprintf("edges[%d]", i), CodeIncludeNonUseCase,
				fmt.Sprintf("include %s should connect two use cases", e.ID))
			continue
		}
		if _, ok := inDegree[e.SourceID]; !ok {
			inDegree[e.SourceID] = 0
		}
		out[e.SourceID] = append(out[e.SourceID], e.TargetID)
		inDegree[e.TargetID]++
	}

	queue := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(inDegree) {
		var cyclic []string
		for id, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		result.AddWarning("edges", CodeIncludeCycle, fmt.Sprintf("include relations form a cycle through %v", cyclic))
	}
	return result
}
