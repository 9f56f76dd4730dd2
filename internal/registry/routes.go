package registry

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

// RegisterRoutes wires up the repository management REST API endpoints.
func RegisterRoutes(r chi.Router, ix *Indexer) {
	h := &routeHandler{ix: ix}
	r.Route("/api/repositories", func(r chi.Router) {
		r.Post("/", h.addRepo)
		r.Get("/", h.listRepos)
		r.Get("/{id}", h.getRepo)
		r.Delete("/{id}", h.removeRepo)
		r.Post("/{id}/index", h.indexRepo)
		r.Post("/{id}/query", h.queryRepo)
	})
}

type routeHandler struct {
	ix *Indexer
}

type addRepoRequest struct {
	URL         string `json:"url"`
	Branch      string `json:"branch,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *routeHandler) addRepo(w http.ResponseWriter, r *http.Request) {
	var req addRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	ctx := r.Context()
	repo, err := h.ix.Register(ctx, RegisterRequest{URL: req.URL, Branch: req.Branch, Description: req.Description})
	if err != nil {
		WriteError(w, err)
		return
	}

	repo, err = h.ix.Index(ctx, repo.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *routeHandler) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.ix.Store().List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (h *routeHandler) getRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := h.ix.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (h *routeHandler) removeRepo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ix.Delete(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "repository " + id + " removed"})
}

func (h *routeHandler) indexRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := h.ix.Index(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

type queryRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit,omitempty"`
	ScoreThreshold *float64 `json:"scoreThreshold,omitempty"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
	FilePath       string   `json:"filePath,omitempty"`
	Type           string   `json:"type,omitempty"`
}

func (h *routeHandler) queryRepo(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sources, err := h.ix.Query(r.Context(), rag.QueryRequest{
		Query:          req.Query,
		RepositoryID:   chi.URLParam(r, "id"),
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		MaxTokens:      req.MaxTokens,
		FilePath:       req.FilePath,
		Type:           req.Type,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// WriteError maps an error to a JSON error response by its kind.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ragerr.KindOf(err) {
	case ragerr.Validation:
		status = http.StatusBadRequest
	case ragerr.NotFound:
		status = http.StatusNotFound
	case ragerr.Provider:
		status = http.StatusBadGateway
	}
	body := map[string]string{"error": err.Error()}
	if stage := ragerr.StageOf(err); stage != "" {
		body["stage"] = string(stage)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
