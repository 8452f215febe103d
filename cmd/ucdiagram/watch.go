package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 150 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var flags renderFlags
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-render a PlantUML use-case diagram every time the file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc, err := detachedService(cfg, logger)
			if err != nil {
				return err
			}

			path := args[0]
			render := func(ctx context.Context) {
				source, err := readSource(cmd, path)
				if err != nil {
					logger.Error("read failed", "path", path, "error", err)
					return
				}
				out, err := renderSource(ctx, svc, source, flags)
				if err != nil {
					logger.Error("render failed", "path", path, "error", err)
					return
				}
				if flags.output == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "--- %s %s\n", filepath.Base(path), time.Now().Format(time.TimeOnly))
				}
				if err := emit(cmd, flags.output, out.Body); err != nil {
					logger.Error("write failed", "error", err)
					return
				}
				logger.Debug("rendered", "path", path, "format", out.Format)
			}

			render(cmd.Context())
			logger.Info("watching for changes", "path", path)
			return watchFile(cmd.Context(), path, watchDebounce, render)
		},
	}
	flags.register(cmd)
	return cmd
}

// watchFile calls onChange after path is written, created or renamed into
// place, coalescing bursts within debounce. It blocks until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are followed.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func(context.Context)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
