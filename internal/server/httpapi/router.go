// Package httpapi is the HTTP transport of the auth core: login, session
// lookup and logout over JSON, plus health and metrics endpoints.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/metrics"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

// Authenticator is satisfied by *services.AuthService.
type Authenticator interface {
	Login(ctx context.Context, username, password string, remember bool) (*models.SessionInfo, error)
	ValidateToken(ctx context.Context, token string) (*models.SessionInfo, error)
	RevokeToken(ctx context.Context, userID int64, token string) error
}

// Pinger reports readiness of a dependency; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	auth    Authenticator
	log     logging.Logger
	metrics *metrics.Metrics
	ready   Pinger
}

// NewHandler binds the transport to an Authenticator. m and ready may be nil.
func NewHandler(auth Authenticator, log logging.Logger, m *metrics.Metrics, ready Pinger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{auth: auth, log: log.With("module", "http"), metrics: m, ready: ready}
}

// NewRouter registers the auth routes. Each mount is called inside the
// authenticated group, so collaborators can add routes that see the session
// and guard them with RequirePolicy.
func NewRouter(h *Handler, mounts ...func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	if h.metrics != nil {
		r.Use(h.metricsMiddleware)
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			r.Get("/session", h.session)
			r.Post("/logout", h.logout)
		})
	})

	if len(mounts) > 0 {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			for _, m := range mounts {
				m(r)
			}
		})
	}

	return r
}
