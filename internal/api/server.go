// Package api serves the REST and SSE interface of ucdiagram.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/logging"
	"github.com/rendis/ucdiagram/internal/scheduler"
	"github.com/rendis/ucdiagram/internal/streaming"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Deps holds the dependencies of the API server.
type Deps struct {
	Service *diagrams.Service
	Hub     streaming.EventHub
	Logger  *slog.Logger
	// Health reports extra component state on /healthz. Optional.
	Health func(ctx context.Context) map[string]any
	// Jobs exposes the maintenance jobs under /api/maintenance. Optional.
	Jobs JobRunner
}

// JobRunner lists and triggers maintenance jobs.
type JobRunner interface {
	Status() []scheduler.JobStatus
	RunNow(ctx context.Context, name string) error
}

// Server serves the HTTP API.
type Server struct {
	deps Deps
}

// NewServer creates a Server. Hub defaults to the service's hub.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Hub == nil && deps.Service != nil {
		deps.Hub = deps.Service.Hub()
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		s.requestID,
		s.accessLog,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/sse/diagrams/{id}", s.handleSSEDiagram)

	r.Route("/api", func(r chi.Router) {
		r.Post("/parse", s.handleParse)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject)
			r.Get("/", s.handleListProjects)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Delete("/", s.handleDeleteProject)
				r.Post("/diagrams", s.handleCreateDiagram)
				r.Get("/diagrams", s.handleListDiagrams)
				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules", s.handleListRules)
			})
		})

		r.Route("/diagrams/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDiagram)
			r.Put("/", s.handleUpdateDiagram)
			r.Delete("/", s.handleDeleteDiagram)
			r.Put("/source", s.handleUpdateSource)
			r.Post("/edit", s.handleEdit)
			r.Get("/render", s.handleRender)
			r.Get("/query", s.handleQuery)
			r.Get("/lint", s.handleLint)
			r.Get("/events", s.handleEvents)
			r.Get("/sources", s.handleSources)
		})

		r.Delete("/rules/{id}", s.handleDeleteRule)

		r.Get("/maintenance", s.handleListJobs)
		r.Post("/maintenance/{job}", s.handleRunJob)
	})

	return r
}

// Serve listens on addr and blocks until ctx is cancelled, then shuts down
// gracefully. Each extra function runs alongside the server; the first error
// stops everything.
func (s *Server) Serve(ctx context.Context, addr string, extra ...func(ctx context.Context) error) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, fn := range extra {
		eg.Go(func() error { return fn(egctx) })
	}

	eg.Go(func() error {
		s.deps.Logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.deps.Logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestID reuses an incoming X-Request-ID or assigns a new one, and puts it
// on the request context for correlated logging.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Health != nil {
		for k, v := range s.deps.Health(r.Context()) {
			body[k] = v
		}
	}
	writeJSON(w, http.StatusOK, body)
}
