package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/ucdiagram/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const graphSchemaURL = "https://ucdiagram.dev/schemas/graph.json"

// graphSchemaJSON is the JSON Schema for schema.Graph.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ucdiagram.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "point": {
      "type": "object",
      "required": ["x", "y"],
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" }
      },
      "additionalProperties": false
    },
    "size": {
      "type": "object",
      "required": ["width", "height"],
      "properties": {
        "width": { "type": "number", "exclusiveMinimum": 0 },
        "height": { "type": "number", "exclusiveMinimum": 0 }
      },
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "required": ["id", "kind", "label", "position"],
      "properties": {
        "id": { "type": "string", "pattern": "^(actor|usecase|package)_[0-9]+$" },
        "kind": { "enum": ["actor", "usecase", "package"] },
        "label": { "type": "string", "minLength": 1 },
        "position": { "$ref": "#/$defs/point" },
        "size": { "$ref": "#/$defs/size" },
        "containerId": { "type": "string" }
      },
      "additionalProperties": false
    },
    "style": {
      "type": "object",
      "properties": {
        "dash": { "type": "string" },
        "marker": { "type": "string" },
        "label": { "type": "string" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["id", "sourceId", "targetId", "relationKind", "sourceHandle", "targetHandle"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "sourceId": { "type": "string", "minLength": 1 },
        "targetId": { "type": "string", "minLength": 1 },
        "relationKind": {
          "enum": ["association", "include", "extend", "generalization", "composition", "aggregation"]
        },
        "sourceHandle": { "enum": ["left", "right"] },
        "targetHandle": { "enum": ["left", "right"] },
        "style": { "$ref": "#/$defs/style" }
      },
      "additionalProperties": false
    }
  }
}`

// GraphValidator implements Validator. It is safe for concurrent use.
type GraphValidator struct {
	graphSchema *jsonschema.Schema
}

var _ Validator = (*GraphValidator)(nil)

// NewGraphValidator creates a GraphValidator with the graph schema pre-compiled.
func NewGraphValidator() (*GraphValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource(graphSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}
	compiled, err := c.Compile(graphSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}
	return &GraphValidator{graphSchema: compiled}, nil
}

// Validate runs the schema stage and, if it passes, the structural checks.
// Schema errors short-circuit.
func (v *GraphValidator) Validate(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if g == nil {
		result.AddError("/", CodeSchema, "graph is nil")
		return result
	}

	doc, err := toJSONValue(g)
	if err != nil {
		result.AddError("/", CodeSchema, "failed to serialize graph: "+err.Error())
		return result
	}
	result.Merge(v.validateDoc(doc))
	if !result.Valid() {
		return result
	}

	result.Merge(validateStructure(g))
	if result.Valid() {
		result.Merge(validateIncludes(g))
	}
	return result
}

// ValidateGraph satisfies the Validator interface.
func (v *GraphValidator) ValidateGraph(g *schema.Graph) error {
	return v.Validate(g).ToError()
}

// DecodeGraph validates raw JSON against the graph schema before decoding it,
// so unknown fields are rejected rather than silently dropped.
func (v *GraphValidator) DecodeGraph(data []byte) (*schema.Graph, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "graph is not valid JSON").WithCause(err)
	}
	if r := v.validateDoc(doc); !r.Valid() {
		return nil, r.ToError()
	}

	var g schema.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "decode graph").WithCause(err)
	}
	if err := v.ValidateGraph(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (v *GraphValidator) validateDoc(doc any) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	err := v.graphSchema.Validate(doc)
	if err == nil {
		return result
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		result.AddError("/", CodeSchema, err.Error())
		return result
	}
	collectViolations(verr, result)
	if result.Valid() {
		result.AddError("/", CodeSchema, verr.Error())
	}
	return result
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// collectViolations walks a ValidationError tree and records each leaf with
// its instance location.
func collectViolations(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		result.AddError(loc, CodeSchema, verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, result)
	}
}
