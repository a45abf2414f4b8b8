// Package api exposes the HTTP interface for the trending snapshot service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

// Server wires HTTP handlers to the snapshot archive and the websocket hub.
type Server struct {
	router chi.Router
	store  hotspot.Store
	cache  *hotspot.Cache
	logger *zap.Logger
}

// WSHandler serves websocket subscriber connections.
type WSHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st hotspot.Store, cache *hotspot.Cache, ws WSHandler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  st,
		cache:  cache,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	// The websocket route hijacks the connection, which http.TimeoutHandler
	// forbids, so it is mounted outside the timeout group.
	if ws != nil {
		r.Get("/ws", ws.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())

		r.Route("/v1", func(r chi.Router) {
			r.Get("/hot/latest", s.getLatest)
			r.Get("/hot/{date}/{hour}", s.getArchivedHour)
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		if snap := s.cache.Latest(); snap != nil {
			writeSnapshot(w, r, snap)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no snapshot available yet")
}

func (s *Server) getArchivedHour(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(hotspot.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", date))
		return
	}
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil || hour < 0 || hour > 23 {
		writeError(w, http.StatusBadRequest, "hour must be between 0 and 23")
		return
	}
	snap, err := s.store.Load(r.Context(), date, hour)
	if err != nil {
		if errors.Is(err, hotspot.ErrNotArchived) {
			writeError(w, http.StatusNotFound, "snapshot not archived")
			return
		}
		s.logger.Error("archive lookup failed",
			zap.String("date", date), zap.Int("hour", hour), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "archive lookup failed")
		return
	}
	writeSnapshot(w, r, snap)
}

// writeSnapshot honors an optional ?limit= query parameter.
func writeSnapshot(w http.ResponseWriter, r *http.Request, snap *hotspot.Snapshot) {
	out := *snap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		out.Topics = snap.Truncated(limit)
	}
	writeJSON(w, http.StatusOK, &out)
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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
