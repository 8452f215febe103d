package validation

import (
	"fmt"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// validateStructure checks the references that JSON Schema cannot express:
// unique ids, edge endpoints, containment and package sizes.
func validateStructure(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]*schema.Node, len(g.Nodes))
	labels := make(map[string]string, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		if _, dup := nodes[n.ID]; dup {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodes[n.ID] = n

		if n.Kind == schema.NodeKindPackage {
			if n.Size == nil {
				result.AddError(path+".size", CodeMissingSize, fmt.Sprintf("package %s has no size", n.ID))
			}
			continue
		}
		if prev, dup := labels[n.Label]; dup {
			result.AddWarning(path+".label", CodeDuplicateLabel,
				fmt.Sprintf("label %q is used by %s and %s", n.Label, prev, n.ID))
		} else {
			labels[n.Label] = n.ID
		}
	}

	for i, n := range g.Nodes {
		if n.ContainerID == "" {
			continue
		}
		path := fmt.Sprintf("nodes[%d].containerId", i)
		if n.Kind != schema.NodeKindUseCase {
			result.AddError(path, CodeBadContainer, fmt.Sprintf("%s %s cannot be contained", n.Kind, n.ID))
			continue
		}
		pkg, ok := nodes[n.ContainerID]
		switch {
		case !ok:
			result.AddError(path, CodeBadContainer, fmt.Sprintf("references non-existent node %q", n.ContainerID))
		case pkg.Kind != schema.NodeKindPackage:
			result.AddError(path, CodeBadContainer, fmt.Sprintf("node %q is not a package", n.ContainerID))
		}
	}

	edges := make(map[string]bool, len(g.Edges))
	for i, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if edges[e.ID] {
			result.AddError(path+".id", CodeDuplicateID, fmt.Sprintf("duplicate edge id %q", e.ID))
			continue
		}
		edges[e.ID] = true

		for _, end := range []struct{ field, id string }{{"sourceId", e.SourceID}, {"targetId", e.TargetID}} {
			n, ok := nodes[end.id]
			switch {
			case !ok:
				result.AddError(path+"."+end.field, CodeUnknownEndpoint,
					fmt.Sprintf("references non-existent node %q", end.id))
			case n.Kind == schema.NodeKindPackage:
				result.AddError(path+"."+end.field, CodePackageEndpoint,
					fmt.Sprintf("package %s cannot be an edge endpoint", end.id))
			}
		}
		if e.SourceID == e.TargetID {
			result.AddWarning(path, CodeSelfLoop, fmt.Sprintf("edge %s connects %s to itself", e.ID, e.SourceID))
		}
		if want := schema.EdgeID(e.SourceID, e.TargetID, e.Relation); e.ID != want {
			result.AddWarning(path+".id", CodeEdgeIDMismatch, fmt.Sprintf("edge id %q, expected %q", e.ID, want))
		}
	}

	return result
}
