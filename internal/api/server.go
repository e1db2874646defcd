// Package api exposes the HTTP interface for reviewing opportunities and managing businesses.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/business"
	"github.com/JakeFAU/mention-radar/internal/config"
	"github.com/JakeFAU/mention-radar/internal/consensus"
	"github.com/JakeFAU/mention-radar/internal/heartbeat"
	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/radar"
)

// requestTimeout bounds every request; suggestion requests wait on the slowest model.
const requestTimeout = 90 * time.Second

// HealthReporter derives component health from heartbeats.
type HealthReporter interface {
	Health(ctx context.Context, names []string, now time.Time) ([]heartbeat.Report, error)
}

// Suggester produces ranked keyword suggestions.
type Suggester interface {
	Suggest(ctx context.Context, in consensus.Input) (consensus.Result, error)
	PreselectThreshold() int
}

// Deps are the collaborators the handlers call into. Suggester may be nil, in which case the
// suggestion route answers 503.
type Deps struct {
	Store     radar.Store
	Health    HealthReporter
	Suggester Suggester
	IDs       radar.IDGenerator
	Clock     radar.Clock
	Logger    *zap.Logger
}

// Server wires HTTP handlers to the store and pipeline components.
type Server struct {
	router     chi.Router
	store      radar.Store
	businesses *business.Service
	health     HealthReporter
	suggester  Suggester
	ids        radar.IDGenerator
	clock      radar.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      deps.Store,
		businesses: business.NewService(deps.Store, deps.IDs, deps.Clock),
		health:     deps.Health,
		suggester:  deps.Suggester,
		ids:        deps.IDs,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/health", s.getHealth)
		r.Get("/stats", s.getStats)
		r.Get("/posts", s.listPosts)
		r.Get("/opportunities", s.listOpportunities)
		r.Post("/analyses/{id}/status", s.updateAnalysisStatus)
		r.Post("/suggestions", s.suggestKeywords)

		r.Route("/businesses", func(r chi.Router) {
			r.Get("/", s.listBusinesses)
			r.Post("/", s.createBusiness)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", s.getBusiness)
				r.Delete("/", s.deleteBusiness)
				r.Post("/active", s.setBusinessActive)
				r.Post("/keywords", s.addKeyword)
				r.Post("/keywords/import", s.importKeywords)
			})
		})
		r.Route("/keywords/{id}", func(r chi.Router) {
			r.Post("/active", s.setKeywordActive)
			r.Delete("/", s.deleteKeyword)
		})
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// fail maps domain errors onto HTTP statuses; anything unrecognized is logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, radar.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, radar.ErrDuplicateSlug), errors.Is(err, radar.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, radar.ErrEmptySlug),
		errors.Is(err, business.ErrMissingName),
		errors.Is(err, consensus.ErrMissingName),
		errors.Is(err, consensus.ErrMissingContext):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
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
				zap.String("request_id", requestIDFrom(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
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

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
