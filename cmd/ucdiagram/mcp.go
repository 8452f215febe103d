package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/store"
	ucdmcp "github.com/rendis/ucdiagram/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ucd.* tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol, so logs go to stderr.
			cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := diagrams.New(diagrams.Deps{
				Store:           st,
				Replayer:        store.NewEventLog(st),
				Logger:          logger,
				MermaidASCIIBin: cfg.MermaidASCIIBin,
			})
			if err != nil {
				return err
			}
			srv := ucdmcp.NewServer(ucdmcp.ServerDeps{
				Service: svc,
				Logger:  logger,
				Version: version,
			})
			logger.Info("mcp server ready", "db_path", cfg.DBPath)
			return srv.Serve(cmd.Context())
		},
	}
}
