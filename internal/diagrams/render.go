package diagrams

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rendis/ucdiagram/internal/diagram"
	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/internal/store"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// Render formats.
const (
	FormatMermaid  = "mermaid"
	FormatASCII    = "ascii"
	FormatPlantUML = "plantuml"
	FormatPNG      = "png"
	FormatSVG      = "svg"
	FormatJSON     = "json"
)

// Formats lists the supported render formats.
var Formats = []string{FormatMermaid, FormatASCII, FormatPlantUML, FormatPNG, FormatSVG, FormatJSON}

// Rendering is a rendered diagram and its media type.
type Rendering struct {
	Format      string
	ContentType string
	Body        []byte
}

// RenderOptions controls Render and RenderGraph.
type RenderOptions struct {
	Format string
	Title  string
	// Marks overlays lint findings on the rendered nodes.
	Marks map[string]diagram.Mark
}

// Render renders a stored diagram. With withLint the diagram's lint findings
// are drawn on the nodes.
func (s *Service) Render(ctx context.Context, id, format string, withLint bool) (*Rendering, error) {
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := RenderOptions{Format: format, Title: d.Name}
	if withLint {
		findings, err := s.lintDiagram(ctx, d)
		if err != nil {
			return nil, err
		}
		opts.Marks = lint.Marks(findings)
	}
	return s.RenderGraph(ctx, d.Graph, opts)
}

// RenderGraph renders g without touching the store.
func (s *Service) RenderGraph(ctx context.Context, g schema.Graph, opts RenderOptions) (*Rendering, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = FormatMermaid
	}
	if !slices.Contains(Formats, format) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput,
			"unknown render format %q, want one of %s", opts.Format, strings.Join(Formats, ", "))
	}

	if format == FormatJSON {
		body, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal graph: %w", err)
		}
		return &Rendering{Format: format, ContentType: "application/json", Body: body}, nil
	}

	model, err := diagram.Build(&g, opts.Marks)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "cannot build diagram model").WithCause(err)
	}
	if opts.Title != "" {
		model.Title = opts.Title
	}

	switch format {
	case FormatMermaid:
		return textRendering(format, diagram.RenderMermaid(model)), nil
	case FormatASCII:
		return textRendering(format, s.ascii.Render(ctx, model)), nil
	case FormatPlantUML:
		return textRendering(format, diagram.RenderPlantUML(model)), nil
	case FormatPNG:
		body, err := diagram.RenderImageFormat(ctx, model, diagram.ImagePNG)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeRender, "png rendering failed").WithCause(err)
		}
		return &Rendering{Format: format, ContentType: "image/png", Body: body}, nil
	default:
		body, err := diagram.RenderImageFormat(ctx, model, diagram.ImageSVG)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeRender, "svg rendering failed").WithCause(err)
		}
		return &Rendering{Format: format, ContentType: "image/svg+xml", Body: body}, nil
	}
}

// ASCIIRendererState reports the circuit state of the mermaid-ascii binary.
func (s *Service) ASCIIRendererState() string {
	return s.ascii.Breaker().State().String()
}

func textRendering(format, text string) *Rendering {
	return &Rendering{Format: format, ContentType: "text/plain; charset=utf-8", Body: []byte(text)}
}

// Query runs a jq expression over a stored diagram's graph.
func (s *Service) Query(ctx context.Context, id, expression string) ([]any, error) {
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.QueryGraph(ctx, d.Graph, expression)
}

// QueryGraph runs a jq expression over g and returns every output.
func (s *Service) QueryGraph(ctx context.Context, g schema.Graph, expression string) ([]any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "jq expression is required")
	}
	data, err := graphDocument(g)
	if err != nil {
		return nil, err
	}
	return s.engines.JQ().Run(ctx, expression, data)
}

// Lint runs the built-in rules and the project's rules on a stored diagram.
func (s *Service) Lint(ctx context.Context, id string) ([]lint.Finding, error) {
	d, err := s.store.GetDiagram(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lintDiagram(ctx, d)
}

func (s *Service) lintDiagram(ctx context.Context, d *store.Diagram) ([]lint.Finding, error) {
	stored, err := s.store.ListRules(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}
	rules := slices.Clone(lint.BuiltinRules)
	for _, r := range stored {
		rules = append(rules, lintRule(r))
	}
	return s.linter.Lint(ctx, d.Graph, rules)
}

// LintGraph runs the built-in rules plus extra on g.
func (s *Service) LintGraph(ctx context.Context, g schema.Graph, extra ...lint.Rule) ([]lint.Finding, error) {
	for _, r := range extra {
		if err := s.linter.CheckRule(r); err != nil {
			return nil, err
		}
	}
	return s.linter.Lint(ctx, g, append(slices.Clone(lint.BuiltinRules), extra...))
}

// graphDocument converts g to the generic JSON shape jq operates on.
func graphDocument(g schema.Graph) (map[string]any, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return doc, nil
}
