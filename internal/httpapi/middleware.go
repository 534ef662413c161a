// Package httpapi serves the read-only HTTP surface (spec §6): the
// status projection, nix store artifact access, and the frontend's
// static files. Modeled on the teacher's server/middleware chain-builder
// style, simplified to this module's single-listener shape and without
// the teacher's separate ClassifiedError builder framework (dropped per
// design notes; plain wrapped errors are used throughout instead).
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/metrics"
)

// Chain wraps next with request-ID assignment, structured logging, and
// panic recovery, in that order.
func Chain(logger *slog.Logger, recorder metrics.Recorder, next http.Handler) http.Handler {
	return requestIDMiddleware(loggingMiddleware(logger, recorder, panicRecoveryMiddleware(logger, next)))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(withRequestID(r.Context(), id))
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger, recorder metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		logger.Info("http request",
			logfields.RequestID(requestIDFrom(r.Context())),
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(wrapped.statusCode),
			logfields.DurationMS(float64(duration.Microseconds())/1000),
			logfields.UserAgent(r.UserAgent()),
			logfields.RemoteAddr(r.RemoteAddr))

		recorder.ObserveHTTPRequestDuration(routeLabel(r.URL.Path), r.Method, wrapped.statusCode, duration)
	})
}

func panicRecoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("http handler panic",
					logfields.RequestID(requestIDFrom(r.Context())),
					logfields.Path(r.URL.Path),
					logfields.Method(r.Method),
					slog.Any("panic", rec))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code written for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel collapses a request path into a low-cardinality metrics label.
func routeLabel(path string) string {
	switch {
	case path == "/repos":
		return "/repos"
	case len(path) >= 10 && path[:10] == "/nix/store":
		return "/nix/store"
	case len(path) >= 6 && path[:6] == "/store":
		return "/store"
	default:
		return "/static"
	}
}
