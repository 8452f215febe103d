package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/ucdiagram/internal/config"
	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ucdiagram",
		Short:        "Parse, store, render and lint PlantUML use-case diagrams",
		SilenceUsage: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newParseCmd(),
		newRenderCmd(),
		newLintCmd(),
		newWatchCmd(),
		newMCPCmd(),
		newInstallToolsCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the layered configuration and builds a logger on w.
func loadConfig(cmd *cobra.Command, w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, w)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// detachedService is a diagrams.Service without a database, used by the file
// commands.
func detachedService(cfg *config.Config, logger *slog.Logger) (*diagrams.Service, error) {
	return diagrams.New(diagrams.Deps{
		Logger:          logger,
		MermaidASCIIBin: cfg.MermaidASCIIBin,
	})
}
