package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/pkg/schema"
)

// handleParse extracts a graph from PlantUML text.
func (s *Server) handleParse(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, ok := stringArg(req, "source")
	if !ok {
		return mcp.NewToolResultError("source is required"), nil
	}
	return marshalResult(s.service.Parse(source))
}

// handleRender renders inline text or a stored diagram.
func (s *Server) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	withLint := req.GetBool("lint", false)

	var out *diagrams.Rendering
	if id := req.GetString("diagram_id", ""); id != "" {
		out, err = s.service.Render(ctx, id, format, withLint)
	} else {
		source, ok := stringArg(req, "source")
		if !ok {
			return mcp.NewToolResultError("source or diagram_id is required"), nil
		}
		g := s.service.Parse(source).Graph
		opts := diagrams.RenderOptions{Format: format}
		if withLint {
			findings, lerr := s.service.LintGraph(ctx, g)
			if lerr != nil {
				return toolError(lerr), nil
			}
			opts.Marks = lint.Marks(findings)
		}
		out, err = s.service.RenderGraph(ctx, g, opts)
	}
	if err != nil {
		return toolError(err), nil
	}

	switch out.Format {
	case diagrams.FormatPNG:
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(out.Body)), nil
	default:
		return mcp.NewToolResultText(string(out.Body)), nil
	}
}

// handleSave creates a diagram, or stores a new source revision when
// diagram_id is given.
func (s *Server) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, ok := stringArg(req, "source")
	if !ok {
		return mcp.NewToolResultError("source is required"), nil
	}

	if id := req.GetString("diagram_id", ""); id != "" {
		d, err := s.service.UpdateSource(ctx, id, source, int64(req.GetInt("revision", 0)))
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(d)
	}

	d, err := s.service.CreateDiagram(ctx, diagrams.CreateDiagramInput{
		ProjectID: req.GetString("project_id", ""),
		Name:      req.GetString("name", ""),
		Source:    source,
	})
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(d)
}

// handleGet loads a stored diagram and optionally starts watching it.
func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("diagram_id")
	if err != nil {
		return mcp.NewToolResultError("diagram_id is required"), nil
	}
	d, err := s.service.GetDiagram(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	watching := false
	if req.GetBool("watch", false) {
		watching = s.captureSession(ctx, id)
	}
	return marshalResult(map[string]any{"diagram": d, "watching": watching})
}

// handleQuery runs jq over inline text or a stored diagram.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("jq")
	if err != nil {
		return mcp.NewToolResultError("jq is required"), nil
	}

	var results []any
	if id := req.GetString("diagram_id", ""); id != "" {
		results, err = s.service.Query(ctx, id, expression)
	} else {
		source, ok := stringArg(req, "source")
		if !ok {
			return mcp.NewToolResultError("source or diagram_id is required"), nil
		}
		results, err = s.service.QueryGraph(ctx, s.service.Parse(source).Graph, expression)
	}
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"results": results})
}

// handleLint checks inline text or a stored diagram.
func (s *Server) handleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		findings []lint.Finding
		err      error
	)
	if id := req.GetString("diagram_id", ""); id != "" {
		findings, err = s.service.Lint(ctx, id)
	} else {
		source, ok := stringArg(req, "source")
		if !ok {
			return mcp.NewToolResultError("source or diagram_id is required"), nil
		}
		findings, err = s.service.LintGraph(ctx, s.service.Parse(source).Graph)
	}
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"findings": findings})
}

// captureSession registers the calling session as a watcher of diagramID.
func (s *Server) captureSession(ctx context.Context, diagramID string) bool {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.watchers.Watch(diagramID, session.SessionID())
		return true
	}
	return false
}

// stringArg returns a string argument, accepting the empty string as present.
func stringArg(req mcp.CallToolRequest, key string) (string, bool) {
	v, ok := req.GetArguments()[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// toolError reports err as a tool-level error result carrying its code.
func toolError(err error) *mcp.CallToolResult {
	if code := schema.ErrorCode(err); code != "" {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", schema.ErrCodeStore, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
