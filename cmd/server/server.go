package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/export"
	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/internal/api"
	"github.com/halderavik/cbc-design-MCP/internal/config"
	"github.com/halderavik/cbc-design-MCP/internal/logger"
	"github.com/halderavik/cbc-design-MCP/internal/mcptools"
	"github.com/halderavik/cbc-design-MCP/internal/metrics"
)

const maxBodyBytes = 4 << 20

type Server struct {
	db      *sql.DB
	svc     *engine.Service
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     config.ServerConfig
	limiter *rate.Limiter
	router  *chi.Mux
}

// NewServer wires the engine, the study catalog and every route. A nil db
// keeps studies in memory.
func NewServer(cfg *config.Config, db *sql.DB, l *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if l == nil {
		l = slog.Default()
	}

	var store catalog.StudyStore = catalog.NewInMemoryStudyStore()
	if db != nil {
		store = catalog.NewPostgresStudyStore(db)
	}

	l.Info("Loading studies", "postgres", db != nil)
	cat, err := catalog.NewCatalog(store, catalog.CacheConfig{TTL: cfg.Catalog.CacheTTL}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to load studies: %w", err)
	}

	s := &Server{
		db:      db,
		catalog: cat,
		metrics: m,
		logger:  l,
		cfg:     cfg.Server,
		svc: engine.NewService(
			engine.WithLogger(l),
			engine.WithRecorder(m),
			engine.WithLimits(cfg.Engine.Limits),
			engine.WithAnnealDefaults(cfg.Engine.Anneal),
		),
	}
	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rl.RPS), max(rl.Burst, 1))
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Handle("/metrics", promhttp.Handler())

	// MCP sessions are long-lived streams and stay outside the request timeout
	srv := mcptools.New(s.svc, s.catalog, s.logger)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/health", s.handleHealth)
		r.With(s.rateLimit).Post("/rpc", s.handleRPC)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)

			r.Route("/studies", func(r chi.Router) {
				r.Get("/", s.handleListStudies)
				r.Post("/", s.handleCreateStudy)

				r.Route("/{studyId}", func(r chi.Router) {
					r.Get("/", s.handleGetStudy)
					r.Put("/", s.handleUpdateStudy)
					r.Delete("/", s.handleDeleteStudy)
					r.With(s.rateLimit).Post("/generate", s.handleGenerateFromStudy)
				})
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// observe records status and latency per route pattern
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		logger.ObserveStatus(status)
		s.metrics.ObserveRequest(route, status, time.Since(start))
	})
}

// rateLimit throttles the CPU-bound routes
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, ok := s.health(r)
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

func (s *Server) health(r *http.Request) (HealthResponse, bool) {
	resp := HealthResponse{Status: "healthy", Store: "memory"}
	if s.db != nil {
		resp.Store = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			return resp, false
		}
	}
	studies, err := s.catalog.ListActive()
	if err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		return resp, false
	}
	resp.StudiesLoaded = len(studies)
	return resp, true
}

// List studies handler
func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := s.catalog.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list studies", err)
		return
	}
	if studies == nil {
		studies = []*catalog.Study{}
	}
	respondJSON(w, http.StatusOK, StudiesListResponse{Studies: studies})
}

// Create study handler
func (s *Server) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	var req api.StudyParams
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := api.Check(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	study := req.Study()
	if err := s.catalog.Add(study); err != nil {
		respondError(w, statusFor(err), "failed to create study", err)
		return
	}

	s.logger.Info("Study created", "study_id", study.ID, "name", study.Name)
	respondJSON(w, http.StatusCreated, study)
}

// Get study handler
func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	study, err := s.catalog.Get(chi.URLParam(r, "studyId"))
	if err != nil {
		respondError(w, statusFor(err), "study not found", err)
		return
	}
	respondJSON(w, http.StatusOK, study)
}

// Update study handler
func (s *Server) handleUpdateStudy(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyId")

	var req api.StudyParams
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := api.Check(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	study, err := s.catalog.Get(studyID)
	if err != nil {
		respondError(w, statusFor(err), "study not found", err)
		return
	}
	req.Apply(study)

	if err := s.catalog.Update(study); err != nil {
		respondError(w, statusFor(err), "failed to update study", err)
		return
	}

	updated, err := s.catalog.Get(studyID)
	if err != nil {
		respondError(w, statusFor(err), "failed to reload study", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// Delete study handler
func (s *Server) handleDeleteStudy(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(chi.URLParam(r, "studyId")); err != nil {
		respondError(w, statusFor(err), "failed to delete study", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handler. ?format= renders the design instead of returning the
// full response.
func (s *Server) handleGenerateFromStudy(w http.ResponseWriter, r *http.Request) {
	var req api.StudyGenerateParams
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.StudyID = chi.URLParam(r, "studyId")

	resp, err := api.GenerateFromStudy(r.Context(), s.svc, s.catalog, req)
	if err != nil {
		respondError(w, statusFor(err), "generation failed", err)
		return
	}

	name := r.URL.Query().Get("format")
	if name == "" {
		respondJSON(w, http.StatusOK, resp)
		return
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported format", err)
		return
	}
	study, err := s.catalog.Get(req.StudyID)
	if err != nil {
		respondError(w, statusFor(err), "study not found", err)
		return
	}
	out, err := api.Render(resp, study.Grid, format, r.URL.Query().Get("metadata") != "false", 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "export failed", err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == export.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Content))
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case api.IsNotFound(err):
		return http.StatusNotFound
	case api.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, generator.ErrGenerationInfeasible), errors.Is(err, generator.ErrFallbackRefused):
		return http.StatusUnprocessableEntity
	case api.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
