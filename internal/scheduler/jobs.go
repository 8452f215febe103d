package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Maintenance job names.
const (
	JobVacuum = "vacuum"
	JobPrune  = "prune-events"
)

// VacuumJob compacts the database file.
func VacuumJob(m Maintainer, cronExpr string) Job {
	return Job{
		Name: JobVacuum,
		Cron: cronExpr,
		Run: func(ctx context.Context, _ time.Time) error {
			if err := m.Vacuum(ctx); err != nil {
				return fmt.Errorf("vacuum: %w", err)
			}
			return nil
		},
	}
}

// PruneJob deletes events older than retention.
func PruneJob(m Maintainer, cronExpr string, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name: JobPrune,
		Cron: cronExpr,
		Run: func(ctx context.Context, now time.Time) error {
			n, err := m.PruneEvents(ctx, now.Add(-retention))
			if err != nil {
				return fmt.Errorf("prune events: %w", err)
			}
			logger.Info("pruned events", slog.Int64("count", n), slog.Duration("retention", retention))
			return nil
		},
	}
}

// MaintenanceConfig selects which maintenance jobs to register. An empty
// cron expression or a non-positive retention disables the job.
type MaintenanceConfig struct {
	VacuumCron     string
	PruneCron      string
	EventRetention time.Duration
}

// RegisterMaintenance adds the jobs enabled by cfg.
func (s *Scheduler) RegisterMaintenance(m Maintainer, cfg MaintenanceConfig) error {
	if cfg.VacuumCron != "" {
		if err := s.Add(VacuumJob(m, cfg.VacuumCron)); err != nil {
			return err
		}
	}
	if cfg.PruneCron != "" && cfg.EventRetention > 0 {
		if err := s.Add(PruneJob(m, cfg.PruneCron, cfg.EventRetention, s.logger)); err != nil {
			return err
		}
	}
	return nil
}
