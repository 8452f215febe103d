package validation

import "github.com/rendis/ucdiagram/pkg/schema"

// Validator checks graphs coming from storage or the canvas before they are
// persisted. Uses JSON Schema Draft 2020-12 for the wire shape.
type Validator interface {
	ValidateGraph(g *schema.Graph) error
	DecodeGraph(data []byte) (*schema.Graph, error)
}

// Issue codes reported in ValidationResult entries.
const (
	CodeSchema            = "SCHEMA"
	CodeDuplicateID       = "DUPLICATE_ID"
	CodeUnknownEndpoint   = "UNKNOWN_ENDPOINT"
	CodePackageEndpoint   = "PACKAGE_ENDPOINT"
	CodeBadContainer      = "BAD_CONTAINER"
	CodeMissingSize       = "MISSING_SIZE"
	CodeDuplicateLabel    = "DUPLICATE_LABEL"
	CodeEdgeIDMismatch    = "EDGE_ID_MISMATCH"
	CodeSelfLoop          = "SELF_LOOP"
	CodeIncludeCycle      = "INCLUDE_CYCLE"
	CodeIncludeNonUseCase = "INCLUDE_NON_USECASE"
)
