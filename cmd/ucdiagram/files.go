package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/lint"
)

// readSource reads a diagram file, or stdin when name is "-".
func readSource(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- parse ---

func newParseCmd() *cobra.Command {
	var withIssues bool
	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Print the graph extracted from a PlantUML use-case diagram as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := detachedService(cfg, logger)
			if err != nil {
				return err
			}

			res := svc.Parse(source)
			if withIssues {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			for _, issue := range res.Issues {
				logger.Warn("skipped fragment",
					slog.String("kind", string(issue.Kind)),
					slog.Int("line", issue.Line),
					slog.Int("col", issue.Col),
					slog.String("message", issue.Message),
				)
			}
			return writeJSON(cmd.OutOrStdout(), res.Graph)
		},
	}
	cmd.Flags().BoolVar(&withIssues, "issues", false, "include skipped fragments in the output")
	return cmd
}

// --- render ---

type renderFlags struct {
	format string
	output string
	title  string
	lint   bool
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", diagrams.FormatMermaid,
		"output format: mermaid, ascii, plantuml, png, svg or json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&f.title, "title", "", "diagram title")
	cmd.Flags().BoolVar(&f.lint, "lint", false, "mark nodes with lint findings")
}

func newRenderCmd() *cobra.Command {
	var flags renderFlags
	cmd := &cobra.Command{
		Use:   "render <file|->",
		Short: "Render a PlantUML use-case diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			svc, err := detachedService(cfg, logger)
			if err != nil {
				return err
			}
			out, err := renderSource(cmd.Context(), svc, source, flags)
			if err != nil {
				return err
			}
			return emit(cmd, flags.output, out.Body)
		},
	}
	flags.register(cmd)
	return cmd
}

func renderSource(ctx context.Context, svc *diagrams.Service, source string, flags renderFlags) (*diagrams.Rendering, error) {
	g := svc.Parse(source).Graph
	opts := diagrams.RenderOptions{Format: flags.format, Title: flags.title}
	if flags.lint {
		findings, err := svc.LintGraph(ctx, g)
		if err != nil {
			return nil, err
		}
		opts.Marks = lint.Marks(findings)
	}
	return svc.RenderGraph(ctx, g, opts)
}

// emit writes body to path, or to stdout when path is empty.
func emit(cmd *cobra.Command, path string, body []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

// --- lint ---

var errLintFailed = errors.New("lint found errors")

func newLintCmd() *cobra.Command {
	var (
		rulesFile string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "lint <file|->",
		Short: "Check a PlantUML use-case diagram against the built-in rules and a rules file",
		Long: "Check a PlantUML use-case diagram. Extra rules come from a YAML file with a\n" +
			"top-level \"rules\" list of {name, engine, expression, severity, message}.\n" +
			"The command fails when any finding has severity error.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			var extra []lint.Rule
			if rulesFile != "" {
				if extra, err = loadRules(rulesFile); err != nil {
					return err
				}
			}
			svc, err := detachedService(cfg, logger)
			if err != nil {
				return err
			}

			findings, err := svc.LintGraph(cmd.Context(), svc.Parse(source).Graph, extra...)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), findings); err != nil {
					return err
				}
			} else {
				for _, f := range findings {
					fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-26s %-10s %s\n", f.Severity, f.Rule, f.NodeID, f.Message)
				}
			}
			for _, f := range findings {
				if f.Severity == lint.SeverityError {
					return errLintFailed
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML file with extra lint rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	return cmd
}

// loadRules reads the "rules" list of a YAML rules file.
func loadRules(path string) ([]lint.Rule, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	var rules []lint.Rule
	if err := k.UnmarshalWithConf("rules", &rules, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	return rules, nil
}
