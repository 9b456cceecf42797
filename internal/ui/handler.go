package ui

import (
	"context"
	"net/http"
	"time"

	"github.com/jw6ventures/campuscal/internal/access"
	"github.com/jw6ventures/campuscal/internal/auth"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/config"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	"github.com/jw6ventures/campuscal/internal/feed"
	"github.com/jw6ventures/campuscal/internal/http/csrf"
	"github.com/jw6ventures/campuscal/internal/http/errors"
	"github.com/jw6ventures/campuscal/internal/store"
)

type universityCreator interface {
	CreateUniversity(ctx context.Context, name string) (calendar.Record, error)
}

type profilePublisher interface {
	PublishProfile(userID string, u *calendar.User)
}

type feedLoader interface {
	Load(ctx context.Context, token string) (feed.Feed, error)
}

type shareRevoker interface {
	RevokeShare(ctx context.Context, token string) error
}

// Handler serves the dashboard JSON API, the admin panel and share feeds.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	creator   universityCreator
	registry  *dashboard.Registry
	publisher profilePublisher
	feeds     feedLoader
	shares    shareRevoker
	norm      *calendar.Normalizer
	loc       *time.Location
	now       func() time.Time
}

func NewHandler(cfg *config.Config, st *store.Store, registry *dashboard.Registry, authService *auth.Service, feeds *feed.Service, shares shareRevoker, norm *calendar.Normalizer) *Handler {
	loc := cfg.Calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	return &Handler{
		cfg:       cfg,
		store:     st,
		creator:   st,
		registry:  registry,
		publisher: authService,
		feeds:     feeds,
		shares:    shares,
		norm:      norm,
		loc:       loc,
		now:       time.Now,
	}
}

// Me describes the signed-in user together with the CSRF token the client
// must echo on state-changing requests.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		errors.WriteError(w, r, calendar.ErrAuthenticationRequired)
		return
	}
	caps, err := access.For(user)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"capabilities": caps,
		"csrfToken":    csrf.TokenFromContext(r.Context()),
	})
}

// view returns the loaded dashboard view of the requesting session.
func (h *Handler) view(r *http.Request) (*dashboard.View, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, calendar.ErrAuthenticationRequired
	}
	v := h.registry.View(auth.SessionIDFromContext(r.Context()), user)
	if err := v.EnsureLoaded(r.Context()); err != nil {
		return nil, err
	}
	return v, nil
}
