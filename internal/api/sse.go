package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/streaming"
)

// handleSSEDiagram streams the events of one diagram. Repeated ?type=
// parameters narrow the stream; "diagram.*" style prefixes are allowed.
func (s *Server) handleSSEDiagram(w http.ResponseWriter, r *http.Request) {
	diagramID := chi.URLParam(r, "id")
	if _, err := s.deps.Service.GetDiagram(r.Context(), diagramID); err != nil {
		writeError(w, err)
		return
	}
	s.serveSSE(w, r, streaming.EventFilter{
		DiagramID:  diagramID,
		EventTypes: r.URL.Query()["type"],
	})
}

// serveSSE is the common SSE implementation.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := logging.WithDiagramID(r.Context(), filter.DiagramID)
	ch, cancel, err := s.deps.Hub.Subscribe(ctx, filter)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.deps.Logger.DebugContext(ctx, "SSE client connected")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
