package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rendis/ucdiagram/internal/api"
	"github.com/rendis/ucdiagram/internal/config"
	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/scheduler"
	"github.com/rendis/ucdiagram/internal/store"
	"github.com/rendis/ucdiagram/internal/streaming"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the SSE event stream and the maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd.Flags(), cfg)
		},
	}
}

func runServe(ctx context.Context, flags *pflag.FlagSet, cfg *config.Config) error {
	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	var level slog.LevelVar
	level.Set(lvl)
	logger, err := logging.NewLeveledLogger(&level, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := streaming.NewMemoryHub()
	svc, err := diagrams.New(diagrams.Deps{
		Store:           st,
		Replayer:        store.NewEventLog(st),
		Hub:             hub,
		Logger:          logger,
		MermaidASCIIBin: cfg.MermaidASCIIBin,
	})
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(logger)
	if err := sched.RegisterMaintenance(st, cfg.Maintenance.Scheduler()); err != nil {
		return fmt.Errorf("maintenance jobs: %w", err)
	}

	srv := api.NewServer(api.Deps{
		Service: svc,
		Hub:     hub,
		Logger:  logger,
		Jobs:    sched,
		Health: func(ctx context.Context) map[string]any {
			out := map[string]any{
				"jobs":           sched.Status(),
				"ascii_renderer": svc.ASCIIRendererState(),
			}
			if v, err := st.SchemaVersion(ctx); err == nil {
				out["schema_version"] = v
			}
			return out
		},
	})

	logger.Info("ucdiagram starting",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("db_path", cfg.DBPath),
		slog.String("config", cfg.File),
	)
	return srv.Serve(ctx, cfg.ListenAddr,
		func(ctx context.Context) error {
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return sched.Stop()
		},
		func(ctx context.Context) error {
			reloadOnHangup(ctx, flags, *cfg, &level, logger)
			return nil
		},
	)
}

// openStore opens and migrates the libsql database at path.
func openStore(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// reloadOnHangup re-reads the configuration on SIGHUP. The log level is
// applied in place; other changes are reported as needing a restart.
func reloadOnHangup(ctx context.Context, flags *pflag.FlagSet, current config.Config, level *slog.LevelVar, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := config.Load(flags)
			if err != nil {
				logger.Error("config reload failed", slog.String("error", err.Error()))
				continue
			}
			applyReload(current, *next, level, logger)
			current = *next
		}
	}
}

func applyReload(old, next config.Config, level *slog.LevelVar, logger *slog.Logger) {
	diff := config.Compare(old, next)
	if diff.LogLevelChanged {
		if lvl, err := logging.ParseLevel(next.LogLevel); err == nil {
			level.Set(lvl)
			logger.Info("log level changed", slog.String("level", next.LogLevel))
		}
	}
	if len(diff.RestartNeeded) > 0 {
		logger.Warn("config changes take effect after a restart", slog.Any("fields", diff.RestartNeeded))
	}
}
