// Package server exposes repository indexing, retrieval and the assistant
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ziadkadry99/clove/internal/assistant"
	"github.com/ziadkadry99/clove/internal/contextbuilder"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/registry"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
	// RequestTimeout bounds every request, including clone and index runs.
	RequestTimeout time.Duration
}

// Server serves the repository and assistant APIs.
type Server struct {
	cfg        Config
	ix         *registry.Indexer
	asst       *assistant.Assistant
	log        zerolog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. asst may be nil, in which case the assistant
// endpoints answer 503.
func New(cfg Config, ix *registry.Indexer, asst *assistant.Assistant, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		cfg:  cfg,
		ix:   ix,
		asst: asst,
		log:  logger,
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.ix != nil {
		registry.RegisterRoutes(r, s.ix)
		r.Post("/api/context", s.handleBuildContext)
	}
	r.Post("/api/ai/{task}", s.handleAsk)

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

type buildContextRequest struct {
	Sources []rag.Source `json:"sources"`
	contextbuilder.Options
}

func (s *Server) handleBuildContext(w http.ResponseWriter, r *http.Request) {
	var req buildContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, s.ix.Service().BuildContext(req.Sources, req.Options))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.asst == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no LLM provider configured"})
		return
	}
	task, err := assistant.ParseTask(chi.URLParam(r, "task"))
	if err != nil {
		registry.WriteError(w, err)
		return
	}

	var req assistant.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Task = task

	answer, err := s.asst.Ask(r.Context(), req)
	if err != nil {
		registry.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("clove server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
