package editor

import (
	"errors"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// OpType names an edit operation.
type OpType string

const (
	OpSelectRelation OpType = "select_relation"
	OpConnect        OpType = "connect"
	OpRetype         OpType = "retype"
	OpRemoveEdge     OpType = "remove_edge"
	OpRemoveNode     OpType = "remove_node"
	OpMoveNode       OpType = "move_node"
	OpAddNode        OpType = "add_node"
	OpContain        OpType = "contain"
)

// Op is the wire form of one edit, as sent by the canvas.
type Op struct {
	Type     OpType              `json:"op"`
	Relation schema.RelationKind `json:"relationKind,omitempty"`
	Source   string              `json:"sourceId,omitempty"`
	Target   string              `json:"targetId,omitempty"`
	EdgeID   string              `json:"edgeId,omitempty"`
	NodeID   string              `json:"nodeId,omitempty"`
	Package  string              `json:"packageId,omitempty"`
	Kind     schema.NodeKind     `json:"kind,omitempty"`
	Label    string              `json:"label,omitempty"`
	Position *schema.Position    `json:"position,omitempty"`
}

// Apply runs ops in order and stops at the first failure. Ops applied before
// the failure stay applied.
func (s *Session) Apply(ops ...Op) error {
	for i, op := range ops {
		if err := s.apply(op); err != nil {
			var se *schema.Error
			if errors.As(err, &se) {
				return se.WithDetails(map[string]any{"op_index": i, "op": string(op.Type)})
			}
			return err
		}
	}
	return nil
}

func (s *Session) apply(op Op) error {
	switch op.Type {
	case OpSelectRelation:
		return s.SelectRelation(op.Relation)
	case OpConnect:
		if op.Relation != "" {
			if err := s.SelectRelation(op.Relation); err != nil {
				return err
			}
		}
		_, err := s.Connect(op.Source, op.Target)
		return err
	case OpRetype:
		_, err := s.Retype(op.EdgeID, op.Relation)
		return err
	case OpRemoveEdge:
		return s.RemoveEdge(op.EdgeID)
	case OpRemoveNode:
		return s.RemoveNode(op.NodeID)
	case OpMoveNode:
		if op.Position == nil {
			return schema.NewError(schema.ErrCodeInvalidInput, "move_node requires a position")
		}
		return s.MoveNode(op.NodeID, *op.Position)
	case OpAddNode:
		var pos schema.Position
		if op.Position != nil {
			pos = *op.Position
		}
		_, err := s.AddNode(op.Kind, op.Label, pos)
		return err
	case OpContain:
		return s.Contain(op.NodeID, op.Package)
	}
	return schema.NewErrorf(schema.ErrCodeInvalidInput, "unknown edit op %q", op.Type)
}
