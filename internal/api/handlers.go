package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/ucdiagram/internal/diagrams"
	"github.com/rendis/ucdiagram/internal/editor"
	"github.com/rendis/ucdiagram/internal/lint"
	"github.com/rendis/ucdiagram/pkg/schema"
)

var errNoJobs = schema.NewError(schema.ErrCodeNotFound, "maintenance jobs are not enabled")

func errMissing(field string) error {
	return schema.NewErrorf(schema.ErrCodeInvalidInput, "%s is required", field)
}

// handleParse parses PlantUML text without storing anything.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source *string `json:"source"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Source == nil {
		writeError(w, errMissing("source"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Service.Parse(*body.Source))
}

// --- Projects ---

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.deps.Service.CreateProject(r.Context(), body.Name, body.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Service.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Service.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Diagrams ---

func (s *Server) handleCreateDiagram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string  `json:"name"`
		Source *string `json:"source"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Source == nil {
		writeError(w, errMissing("source"))
		return
	}
	d, err := s.deps.Service.CreateDiagram(r.Context(), diagrams.CreateDiagramInput{
		ProjectID: chi.URLParam(r, "id"),
		Name:      body.Name,
		Source:    *body.Source,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.deps.Service.ListDiagrams(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Service.GetDiagram(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpdateDiagram renames the diagram and/or replaces its graph with a
// canvas state. Both changes land in one revision or not at all.
func (s *Server) handleUpdateDiagram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     *string       `json:"name"`
		Graph    *schema.Graph `json:"graph"`
		Revision int64         `json:"revision"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == nil && body.Graph == nil {
		writeError(w, errMissing("name or graph"))
		return
	}
	d, err := s.deps.Service.ChangeDiagram(r.Context(), chi.URLParam(r, "id"),
		diagrams.DiagramChanges{Name: body.Name, Graph: body.Graph}, body.Revision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDiagram(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.DeleteDiagram(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source   *string `json:"source"`
		Revision int64   `json:"revision"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Source == nil {
		writeError(w, errMissing("source"))
		return
	}
	d, err := s.deps.Service.UpdateSource(r.Context(), chi.URLParam(r, "id"), *body.Source, body.Revision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ops      []editor.Op `json:"ops"`
		Revision int64       `json:"revision"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.deps.Service.Edit(r.Context(), chi.URLParam(r, "id"), body.Ops, body.Revision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Service.Render(r.Context(), chi.URLParam(r, "id"),
		r.URL.Query().Get("format"), queryBool(r, "lint"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Service.Query(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("jq"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	findings, err := s.deps.Service.Lint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

// handleEvents lists a diagram's events oldest first after ?since=, or, with
// ?type=, the newest events of that type capped by ?limit=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		events, err := s.deps.Service.HistoryByType(r.Context(), id, eventType, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	since, err := queryInt(r, "since", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := s.deps.Service.History(r.Context(), id, int64(since))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Service.Sources(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]string, len(sources))
	for rev, src := range sources {
		out[strconv.FormatInt(rev, 10)] = src
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// --- Rules ---

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var body lint.Rule
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	rule, err := s.deps.Service.CreateRule(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Service.ListRules(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Maintenance ---

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, errNoJobs)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Jobs.Status())
}

// handleRunJob runs a maintenance job now and reports its resulting status.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, errNoJobs)
		return
	}
	name := chi.URLParam(r, "job")
	if err := s.deps.Jobs.RunNow(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	for _, st := range s.deps.Jobs.Status() {
		if st.Name == name {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
