package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/campuscal/internal/auth"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/config"
	"github.com/jw6ventures/campuscal/internal/http/csrf"
	"github.com/jw6ventures/campuscal/internal/http/ratelimit"
	"github.com/jw6ventures/campuscal/internal/logging"
	"github.com/jw6ventures/campuscal/internal/metrics"
	"github.com/jw6ventures/campuscal/internal/ui"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires the auth flow, the dashboard API, the admin panel and the
// public share feeds.
func NewRouter(cfg *config.Config, health HealthChecker, authService *auth.Service, uiHandler *ui.Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// Share feeds: 10 requests per second, burst of 30 (calendar clients poll)
	shareRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(10), 30, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(overrideMethod)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Get("/login", authService.BeginOAuth)
		r.Get("/callback", authService.HandleOAuthCallback)
		r.With(authService.RequireSession, csrf.Middleware(cfg)).Post("/logout", authService.Logout)
	})

	r.Route("/shared/{token}", func(r chi.Router) {
		r.Use(shareRateLimiter.Middleware())
		r.Get("/", uiHandler.SharedFeed)
		r.Get("/calendar.ics", uiHandler.SharedICS)
	})

	r.Group(func(r chi.Router) {
		r.Use(authService.RequireSession)
		r.Use(csrf.Middleware(cfg))

		r.Get("/", uiHandler.Me)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", uiHandler.Me)

			r.Get("/dashboard", uiHandler.Dashboard)
			r.Post("/dashboard/calendar", uiHandler.SelectCalendar)
			r.Post("/dashboard/navigate", uiHandler.Navigate)
			r.Post("/dashboard/highlight", uiHandler.Highlight)
			r.Post("/dashboard/category", uiHandler.Category)
			r.Post("/dashboard/refresh", uiHandler.Refresh)

			r.Post("/events", uiHandler.CreateEvent)
			r.Patch("/events/{id}", uiHandler.UpdateEvent)
			r.Delete("/events/{id}", uiHandler.DeleteEvent)
			r.Post("/events/{id}/move", uiHandler.MoveEvent)
			r.Post("/events/{id}/resize", uiHandler.ResizeEvent)

			r.Post("/calendars/{id}/share", uiHandler.ShareCalendar)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(calendar.RoleOrgAdmin))
				r.Get("/universities", uiHandler.ListUniversities)
				r.Post("/universities", uiHandler.CreateUniversity)
				r.Get("/profiles", uiHandler.ListProfiles)
				r.Post("/profiles", uiHandler.CreateProfile)
				r.Put("/profiles/{id}", uiHandler.UpdateProfile)
				r.Delete("/profiles/{id}", uiHandler.DeleteProfile)
				r.Delete("/shares/{token}", uiHandler.RevokeShare)
			})
		})
	})

	return r
}

// overrideMethod lets clients behind proxies that drop PATCH and DELETE
// tunnel them through POST.
func overrideMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := strings.ToUpper(strings.TrimSpace(r.Header.Get("X-HTTP-Method-Override")))
			if method == "" {
				method = strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("_method")))
			}
			switch method {
			case http.MethodPut, http.MethodPatch, http.MethodDelete:
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}
