// Package api exposes the HTTP interface for the crawler service.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /crawl/{source}/{type} to trigger a crawl run.
//   - GET /crawl/status for checkpoint inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petlife-ingest/pet-crawler/internal/config"
	"github.com/petlife-ingest/pet-crawler/internal/crawl"
	"github.com/petlife-ingest/pet-crawler/internal/metrics"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

const (
	statusTimeout = 10 * time.Second
	crawlTimeout  = 10 * time.Minute
)

// Crawler runs one crawl and reports its result. Implemented by
// crawl.Orchestrator.
type Crawler interface {
	Crawl(ctx context.Context, petType pet.Type, opts crawl.Options) (pet.CrawlResult, error)
}

// Server wires HTTP handlers to the orchestrators and checkpoint store.
type Server struct {
	router      chi.Router
	crawlers    map[string]Crawler
	checkpoints pet.CheckpointStore
	clock       pet.Clock
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Crawlers are
// keyed by source id.
func NewServer(
	crawlers map[string]Crawler,
	checkpoints pet.CheckpointStore,
	clock pet.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		crawlers:    crawlers,
		checkpoints: checkpoints,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/crawl", func(r chi.Router) {
		r.Post("/{source}/{type}", s.triggerCrawl)
		r.Route("/status", func(r chi.Router) {
			r.Use(timeoutMiddleware(statusTimeout))
			r.Get("/", s.crawlStatus)
			r.Get("/{source}", s.crawlStatus)
			r.Get("/{source}/{type}", s.crawlStatus)
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

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.checkpoints.List(ctx, "", ""); err != nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoint store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerCrawl handles POST /crawl/{source}/{type}?limit=N&differential=bool.
// Partial crawl failure is reported inside the 200 body; HTTP error codes
// are reserved for malformed requests and same-key collisions.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	crawler, ok := s.crawlers[source]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}
	petType, ok := pet.ParseType(chi.URLParam(r, "type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be dog or cat")
		return
	}
	opts, err := parseCrawlOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), crawlTimeout)
	defer cancel()

	result, err := crawler.Crawl(ctx, petType, opts)
	if err != nil {
		if errors.Is(err, pet.ErrCrawlInProgress) {
			writeError(w, http.StatusConflict, "crawl already in progress for this source and type")
			return
		}
		s.logger.Error("crawl trigger failed",
			zap.String("source", source),
			zap.String("pet_type", string(petType)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "crawl failed to start")
		return
	}

	writeJSON(w, http.StatusOK, crawlResponse{
		Source:    source,
		PetType:   petType,
		Result:    result,
		Timestamp: s.clock.Now(),
	})
}

// crawlStatus handles GET /crawl/status with optional source and type
// segments narrowing the listing.
func (s *Server) crawlStatus(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	var petType pet.Type
	if raw := chi.URLParam(r, "type"); raw != "" {
		parsed, ok := pet.ParseType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "type must be dog or cat")
			return
		}
		petType = parsed
	}

	checkpoints, err := s.checkpoints.List(r.Context(), source, petType)
	if err != nil {
		s.logger.Error("checkpoint listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}

	entries := make([]statusEntry, 0, len(checkpoints))
	for _, cp := range checkpoints {
		entries = append(entries, toStatusEntry(cp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": entries})
}

func parseCrawlOptions(r *http.Request) (crawl.Options, error) {
	opts := crawl.Options{Differential: true}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return crawl.Options{}, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = limit
	}
	if raw := q.Get("differential"); raw != "" {
		differential, err := strconv.ParseBool(raw)
		if err != nil {
			return crawl.Options{}, errors.New("differential must be true or false")
		}
		opts.Differential = differential
	}
	return opts, nil
}

type crawlResponse struct {
	Source    string          `json:"source"`
	PetType   pet.Type        `json:"petType"`
	Result    pet.CrawlResult `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

type statusEntry struct {
	SourceID       string        `json:"source_id"`
	PetType        pet.Type      `json:"pet_type"`
	Checkpoint     checkpointDTO `json:"checkpoint"`
	TotalProcessed int64         `json:"total_processed"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type checkpointDTO struct {
	LastItemID    string            `json:"lastItemId"`
	RecentItemIDs []string          `json:"recentItemIds"`
	LastCrawlAt   time.Time         `json:"lastCrawlAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func toStatusEntry(cp pet.Checkpoint) statusEntry {
	return statusEntry{
		SourceID: cp.SourceID,
		PetType:  cp.PetType,
		Checkpoint: checkpointDTO{
			LastItemID:    cp.LastItemID,
			RecentItemIDs: cp.RecentItemIDs,
			LastCrawlAt:   cp.LastCrawlAt,
			Metadata:      cp.Metadata,
		},
		TotalProcessed: cp.TotalProcessed,
		UpdatedAt:      cp.UpdatedAt,
	}
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
			duration := time.Since(start)
			// Metrics are labeled by the matched route pattern, not the raw
			// path, to keep label cardinality bounded across ids.
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			metrics.ObserveHTTPRequest(r.Method, route, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
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

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
