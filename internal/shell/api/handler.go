// Package api provides HTTP handlers for the analysis API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/shipmap/internal/core/domain"
	"github.com/artpar/shipmap/internal/engine"
	"github.com/artpar/shipmap/internal/shell/report"
	"github.com/artpar/shipmap/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the analysis API.
type Handler struct {
	store   store.Store
	engine  *engine.Engine
	writer  *report.Writer
	logger  *slog.Logger
	version string
}

// NewHandler creates a new API handler. writer may be nil to skip writing
// report files into analyzed trees.
func NewHandler(s store.Store, e *engine.Engine, w *report.Writer, logger *slog.Logger, version string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   s,
		engine:  e,
		writer:  w,
		logger:  logger.With("component", "api"),
		version: version,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", h.handleCreateAnalysis)
			r.Get("/", h.handleListAnalyses)
			r.Get("/{id}", h.handleGetAnalysis)
			r.Get("/{id}/report", h.handleGetReport)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	if _, err := h.store.ListRuns(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Analysis Handlers
// =============================================================================

// handleCreateAnalysis runs a full analysis synchronously and returns the
// completed run. The run record and report are persisted even when the
// analysis fails so failures stay inspectable.
func (h *Handler) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Root == "" {
		h.writeError(w, http.StatusBadRequest, "root is required", "validation_error")
		return
	}
	if info, err := os.Stat(req.Root); err != nil || !info.IsDir() {
		h.writeError(w, http.StatusBadRequest, "root is not a readable directory", "validation_error")
		return
	}

	previous, err := h.store.LatestChecksum(r.Context(), req.Root)
	if err != nil {
		h.logger.Warn("previous checksum lookup failed", "root", req.Root, "error", err)
	}

	run, rep, analyzeErr := h.engine.Analyze(r.Context(), req.Root, previous)

	if err := h.store.CreateRun(r.Context(), run); err != nil {
		h.logger.Error("failed to persist run", "run_id", run.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to persist run", "internal_error")
		return
	}

	if analyzeErr != nil {
		h.logger.Error("analysis failed", "run_id", run.ID, "error", analyzeErr)
		h.writeJSON(w, http.StatusUnprocessableEntity, runToResponse(run))
		return
	}

	if err := h.store.SaveReport(r.Context(), run.ID, rep); err != nil {
		h.logger.Error("failed to persist report", "run_id", run.ID, "error", err)
	}
	if h.writer != nil {
		if err := h.writer.Write(req.Root, rep); err != nil {
			h.logger.Error("failed to write report files", "run_id", run.ID, "error", err)
		}
	}

	h.writeJSON(w, http.StatusCreated, runToResponse(run))
}

func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	runs, err := h.store.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := RunListResponse{Runs: make([]RunResponse, 0, len(runs)), Count: len(runs)}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found", "not_found")
			return
		}
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "report not found", "not_found")
			return
		}
		h.logger.Error("failed to get report", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get report", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// =============================================================================
// Helpers
// =============================================================================

func runToResponse(run *domain.Run) RunResponse {
	return RunResponse{
		ID:                  run.ID,
		Root:                run.Root,
		Status:              string(run.Status),
		TreeChecksum:        run.TreeChecksum,
		ErrorMessage:        run.ErrorMessage,
		FailedPhase:         run.FailedPhase,
		StartedAt:           run.StartedAt,
		FinishedAt:          run.FinishedAt,
		ArtifactCount:       run.ArtifactCount,
		ConflictCount:       run.ConflictCount,
		RecommendationCount: run.RecommendationCount,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
