// Package api exposes the HTTP interface for the indexing service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/config"
	"github.com/plateindex/plateindex/internal/indexer"
	"github.com/plateindex/plateindex/internal/jobs"
	"github.com/plateindex/plateindex/internal/metrics"
	"github.com/plateindex/plateindex/internal/ratelimit"
)

// Server wires HTTP handlers to the indexer and job runner.
type Server struct {
	router    chi.Router
	indexer   *indexer.Indexer
	runner    *jobs.Runner
	tracker   *ratelimit.Tracker
	publisher catalog.Publisher
	logger    *zap.Logger
	cfg       config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	ix *indexer.Indexer,
	runner *jobs.Runner,
	tracker *ratelimit.Tracker,
	publisher catalog.Publisher,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		indexer:   ix,
		runner:    runner,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/index", s.submitIndexRun)
		r.Get("/usage", s.getUsage)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"active_jobs": s.runner.ActiveCount(),
	})
}

type indexRequest struct {
	Location   string   `json:"location"`
	Categories []string `json:"categories"`
	Limit      *int     `json:"limit"`
}

func (s *Server) submitIndexRun(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Location == "" {
		writeError(w, http.StatusBadRequest, "location required")
		return
	}
	limit := s.cfg.Indexing.DefaultLimit
	if req.Limit != nil {
		if *req.Limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be > 0")
			return
		}
		limit = *req.Limit
	}
	if s.runner.ActiveCount() >= s.cfg.Jobs.MaxActive {
		writeError(w, http.StatusTooManyRequests, "too many active indexing runs")
		return
	}

	query := catalog.SearchQuery{
		Location:   req.Location,
		Categories: req.Categories,
		Limit:      limit,
	}
	label := "index " + query.Location
	jobID, err := s.runner.Enqueue(label, func(ctx context.Context) (catalog.RunStats, error) {
		stats, err := s.indexer.Index(ctx, query)
		if err != nil {
			return stats, err
		}
		s.publishCompletion(ctx, query, stats)
		return stats, nil
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "job queue is full")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) publishCompletion(ctx context.Context, query catalog.SearchQuery, stats catalog.RunStats) {
	if s.publisher == nil || s.cfg.PubSub.TopicName == "" {
		return
	}
	event := map[string]any{
		"location": query.Location,
		"stats":    stats,
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.PubSub.TopicName, event); err != nil {
		s.logger.Warn("publish completion event failed",
			zap.String("location", query.Location),
			zap.Error(err))
	}
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.runner.All()})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := s.runner.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

type sourceUsage struct {
	Source         string `json:"source"`
	Count          int    `json:"count"`
	DaysUntilReset int    `json:"days_until_reset"`
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	usage := make([]sourceUsage, 0, len(s.cfg.Adapters.Priority))
	for _, source := range s.cfg.Adapters.Priority {
		count, err := s.tracker.Count(r.Context(), source)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("usage for %s: %v", source, err))
			return
		}
		days, err := s.tracker.DaysUntilReset(r.Context(), source)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("usage for %s: %v", source, err))
			return
		}
		usage = append(usage, sourceUsage{Source: source, Count: count, DaysUntilReset: days})
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": usage})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
