package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// DiagramNotifier pushes diagram change notifications to watching clients.
type DiagramNotifier interface {
	Notify(ctx context.Context, diagramID string, payload map[string]any) error
}

// sender is the part of server.MCPServer the notifier needs.
type sender interface {
	SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error
}

// MCPNotifier implements DiagramNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer sender
	watchers  *WatchRegistry
}

// NewMCPNotifier creates a notifier that pushes via the MCP session.
func NewMCPNotifier(mcpServer sender, watchers *WatchRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, watchers: watchers}
}

// Notify sends payload to every session watching diagramID.
// Best-effort: sessions that went away are dropped from the registry.
func (n *MCPNotifier) Notify(_ context.Context, diagramID string, payload map[string]any) error {
	var errs []error
	for _, sessionID := range n.watchers.SessionsFor(diagramID) {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		switch {
		case errors.Is(err, server.ErrSessionNotFound):
			n.watchers.Remove(sessionID)
		case err != nil:
			errs = append(errs, err)
		}
	}
	if payload["event_type"] == "diagram.deleted" {
		n.watchers.Forget(diagramID)
	}
	return errors.Join(errs...)
}
