package diagrams

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/store"
	"github.com/rendis/ucdiagram/internal/streaming"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// CreateRule checks and stores a project lint rule.
func (s *Service) CreateRule(ctx context.Context, projectID string, r lint.Rule) (*store.Rule, error) {
	if err := s.linter.CheckRule(r); err != nil {
		return nil, err
	}
	severity := r.Severity
	if severity == "" {
		severity = lint.SeverityWarning
	}
	rule := &store.Rule{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Name:       r.Name,
		Engine:     r.Engine,
		Expression: r.Expression,
		Severity:   severity,
		Message:    r.Message,
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	ctx = logging.WithProjectID(ctx, projectID)
	s.logger.InfoContext(ctx, "rule created", slog.String("rule", rule.Name), slog.String("engine", rule.Engine))
	s.publish(ctx, streaming.StreamEvent{ProjectID: projectID, EventType: schema.EventRuleCreated, Payload: rule})
	return rule, nil
}

// ListRules returns a project's rules ordered by name.
func (s *Service) ListRules(ctx context.Context, projectID string) ([]*store.Rule, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, projectID)
}

// DeleteRule removes a rule by id.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "rule deleted", slog.String("rule_id", id))
	s.publish(ctx, streaming.StreamEvent{EventType: schema.EventRuleDeleted, Payload: map[string]string{"id": id}})
	return nil
}

func lintRule(r *store.Rule) lint.Rule {
	return lint.Rule{
		Name:       r.Name,
		Engine:     r.Engine,
		Expression: r.Expression,
		Severity:   r.Severity,
		Message:    r.Message,
	}
}
