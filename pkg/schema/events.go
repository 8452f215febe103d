package schema

// Event type constants for the diagram event log and live stream.
const (
	EventProjectCreated = "project.created"
	EventProjectDeleted = "project.deleted"

	EventDiagramCreated       = "diagram.created"
	EventDiagramSourceChanged = "diagram.source_changed"
	EventDiagramGraphChanged  = "diagram.graph_changed"
	EventDiagramEdited        = "diagram.edited"
	EventDiagramDeleted       = "diagram.deleted"

	EventRuleCreated = "rule.created"
	EventRuleDeleted = "rule.deleted"
)
