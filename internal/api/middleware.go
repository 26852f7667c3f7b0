package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/yairfalse/vigil/pkg/domain"
	"go.uber.org/zap"
)

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic in HTTP handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method))
				s.respondError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitRequestSize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// authMiddleware attaches an admin principal to requests carrying the
// configured bearer token. Other requests proceed anonymously.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && s.config.AdminToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) == 1 {
			ctx := domain.WithPrincipal(r.Context(), domain.Principal{ID: "api-admin", Roles: []string{domain.RoleAdmin}})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// recordingMiddleware feeds the application counters: every request is
// counted, 5xx responses count as errors.
func (s *Server) recordingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.engine.RecordRequest()
		if rec.status >= http.StatusInternalServerError {
			s.engine.RecordError()
		}
		s.engine.RecordResponseTime(float64(time.Since(start).Microseconds()) / 1000)
	})
}
