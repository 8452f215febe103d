package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/streaming"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Service *diagrams.Service
	Hub     streaming.EventHub
	Logger  *slog.Logger
	Version string
}

// Server wraps an MCP server with use-case diagram tool handlers.
type Server struct {
	service   *diagrams.Service
	hub       streaming.EventHub
	logger    *slog.Logger
	mcpServer *server.MCPServer
	watchers  *WatchRegistry
	notifier  DiagramNotifier
}

// NewServer creates a new Server with all 6 tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	hub := deps.Hub
	if hub == nil && deps.Service != nil {
		hub = deps.Service.Hub()
	}

	s := &Server{
		service:  deps.Service,
		hub:      hub,
		logger:   logger,
		watchers: NewWatchRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"ucdiagram",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("ucdiagram turns PlantUML use-case diagram text into a node/edge graph. Use ucd.parse to extract a graph, ucd.render to draw it, ucd.save to store it in a project, ucd.get to load a stored diagram (watch=true pushes later changes), ucd.query to run jq over a graph and ucd.lint to check it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.watchers)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Diagram changes are forwarded to watching clients meanwhile.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.hub != nil {
		go s.forwardEvents(ctx)
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents pushes diagram events to the sessions watching them.
func (s *Server) forwardEvents(ctx context.Context) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{"diagram.*"}})
	if err != nil {
		s.logger.Error("mcp event subscription failed", slog.String("error", err.Error()))
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload := map[string]any{
				"event_type": ev.EventType,
				"diagram_id": ev.DiagramID,
				"revision":   ev.Revision,
			}
			if err := s.notifier.Notify(ctx, ev.DiagramID, payload); err != nil {
				s.logger.Warn("mcp notify failed",
					slog.String("diagram_id", ev.DiagramID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: parseTool(), Handler: s.handleParse},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: lintTool(), Handler: s.handleLint},
	}
}

// --- Tool definitions ---

func parseTool() mcp.Tool {
	return mcp.NewTool("ucd.parse",
		mcp.WithDescription("Parse PlantUML use-case text into a graph"),
		mcp.WithString("source", mcp.Required(), mcp.Description("PlantUML use-case diagram text")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("ucd.render",
		mcp.WithDescription("Render a diagram as mermaid, ascii, plantuml, png, svg or json"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum(diagrams.Formats...),
			mcp.Description("Output format"),
		),
		mcp.WithString("source", mcp.Description("PlantUML text to render (alternative to diagram_id)")),
		mcp.WithString("diagram_id", mcp.Description("ID of a stored diagram to render")),
		mcp.WithBoolean("lint", mcp.Description("Overlay lint findings on the nodes")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("ucd.save",
		mcp.WithDescription("Store PlantUML text as a new diagram or a new revision of one"),
		mcp.WithString("source", mcp.Required(), mcp.Description("PlantUML use-case diagram text")),
		mcp.WithString("project_id", mcp.Description("Project for a new diagram")),
		mcp.WithString("name", mcp.Description("Name of a new diagram")),
		mcp.WithString("diagram_id", mcp.Description("Existing diagram to update")),
		mcp.WithNumber("revision", mcp.Description("Expected current revision (optimistic concurrency)")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("ucd.get",
		mcp.WithDescription("Load a stored diagram"),
		mcp.WithString("diagram_id", mcp.Required(), mcp.Description("ID of the diagram")),
		mcp.WithBoolean("watch", mcp.Description("Push a notification to this session whenever the diagram changes")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("ucd.query",
		mcp.WithDescription("Run a jq expression over a diagram graph"),
		mcp.WithString("jq", mcp.Required(), mcp.Description("jq expression, e.g. .nodes[] | select(.kind == \"actor\") | .label")),
		mcp.WithString("source", mcp.Description("PlantUML text to query (alternative to diagram_id)")),
		mcp.WithString("diagram_id", mcp.Description("ID of a stored diagram to query")),
	)
}

func lintTool() mcp.Tool {
	return mcp.NewTool("ucd.lint",
		mcp.WithDescription("Check a diagram against the built-in and project lint rules"),
		mcp.WithString("source", mcp.Description("PlantUML text to lint with the built-in rules (alternative to diagram_id)")),
		mcp.WithString("diagram_id", mcp.Description("ID of a stored diagram; its project rules apply too")),
	)
}
