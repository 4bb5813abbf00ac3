package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyToken     ctxKey = "access_token"
	ctxKeySession   ctxKey = "session"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error(r.Context(), "panic recovered",
					"request_id", RequestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.ResponseWriter.Write(payload)
}

func (r *statusRecorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status()
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		switch {
		case status >= 500:
			h.log.Error(r.Context(), "http request completed", fields...)
		case status >= 400:
			h.log.Warn(r.Context(), "http request completed", fields...)
		default:
			h.log.Info(r.Context(), "http request completed", fields...)
		}
	})
}

// metricsMiddleware labels requests by chi route pattern, not raw path.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.ObserveHTTP(r.Method, route, rec.status(), time.Since(start))
	})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := common.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		session, err := h.auth.ValidateToken(r.Context(), raw)
		if err != nil {
			h.writeServiceError(r.Context(), w, "validate_token", err)
			return
		}
		if session == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyToken, raw)
		ctx = context.WithValue(ctx, ctxKeySession, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePolicy rejects requests whose session lacks the named policy. It
// must run after authentication.
func RequirePolicy(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			if !s.HasPolicy(name) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "policy "+name+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SessionFromContext(ctx context.Context) (*models.SessionInfo, bool) {
	s, ok := ctx.Value(ctxKeySession).(*models.SessionInfo)
	return s, ok && s != nil
}

func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func tokenFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyToken).(string)
	return s, ok && s != ""
}

// writeServiceError maps store failures to 503 and everything else to a
// generic 401. Configuration errors are logged; the client never learns
// which check failed.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, common.ErrPersistence) {
		h.log.Error(ctx, "credential store unavailable", "operation", operation, "request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
		return
	}
	h.log.Error(ctx, "authentication failed", "operation", operation, "request_id", RequestIDFromContext(ctx), "error", err)
	writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
}
