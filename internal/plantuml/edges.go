package plantuml

import "github.com/rendis/ucdiagram/pkg/schema"

// relationForms is the order in which relation forms are emitted: all forward
// associations, then all reverse associations, then all includes.
var relationForms = [...]RelationForm{FormForward, FormReverse, FormInclude}

// ExtractEdges recognizes relations in text and resolves them against index
// and nodes. Relations naming an undeclared label are dropped, as is any
// relation whose edge id was already emitted.
func ExtractEdges(text string, nodes []schema.Node, index NameIndex) []schema.Edge {
	return extractEdges(Read(text).Relations, nodes, index)
}

func extractEdges(rels []Relation, nodes []schema.Node, index NameIndex) []schema.Edge {
	byID := make(map[string]schema.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	edges := []schema.Edge{}
	seen := make(map[string]bool)
	for _, form := range relationForms {
		for _, rel := range rels {
			if rel.Form != form {
				continue
			}
			edge, ok := resolve(rel, byID, index)
			if !ok || seen[edge.ID] {
				continue
			}
			seen[edge.ID] = true
			edges = append(edges, edge)
		}
	}
	return edges
}

func resolve(rel Relation, byID map[string]schema.Node, index NameIndex) (schema.Edge, bool) {
	srcID, ok := index.Lookup(rel.Source())
	if !ok {
		return schema.Edge{}, false
	}
	tgtID, ok := index.Lookup(rel.Target())
	if !ok {
		return schema.Edge{}, false
	}
	src, ok := byID[srcID]
	if !ok {
		return schema.Edge{}, false
	}
	tgt, ok := byID[tgtID]
	if !ok {
		return schema.Edge{}, false
	}

	kind := schema.RelationAssociation
	if rel.Form == FormInclude {
		kind = schema.RelationInclude
	}
	sh, th := HandlesFor(kind, src, tgt)
	return schema.Edge{
		ID:           schema.EdgeID(srcID, tgtID, kind),
		SourceID:     srcID,
		TargetID:     tgtID,
		Relation:     kind,
		SourceHandle: sh,
		TargetHandle: th,
		Style:        schema.StyleFor(kind),
	}, true
}
