package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	httperrors "github.com/jw6ventures/campuscal/internal/http/errors"
	"github.com/jw6ventures/campuscal/internal/store"
)

var _ dashboard.Authenticator = (*Service)(nil)

// Service encapsulates the OIDC login flow and session restoration. It also
// serves as the dashboard's Authenticator.
type Service struct {
	profiles store.ProfileRepository
	sessions *SessionManager
	hub      *Hub
	norm     *calendar.Normalizer
	idp      IdentityProvider
	onLogout func(sessionID string)
	onLogin  func(userID, sessionID string)
}

func NewService(profiles store.ProfileRepository, sessions *SessionManager, hub *Hub, norm *calendar.Normalizer, idp IdentityProvider) *Service {
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	return &Service{profiles: profiles, sessions: sessions, hub: hub, norm: norm, idp: idp}
}

// OnLogout registers a callback run with the ID of every session that logs out.
func (s *Service) OnLogout(fn func(sessionID string)) {
	s.onLogout = fn
}

// OnLogin registers a callback run after every successful sign-in with the
// user and the freshly issued session ID.
func (s *Service) OnLogin(fn func(userID, sessionID string)) {
	s.onLogin = fn
}

// BeginOAuth starts the OAuth/OIDC authorization flow.
func (s *Service) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	state, nonce := uuid.NewString(), uuid.NewString()
	if err := s.sessions.IssueState(w, state, nonce); err != nil {
		httperrors.InternalError(w, r, err, "failed to issue oauth state")
		return
	}
	http.Redirect(w, r, s.idp.AuthCodeURL(state, nonce), http.StatusFound)
}

// HandleOAuthCallback completes the OAuth flow and creates a session. Only
// pre-provisioned profiles may sign in.
func (s *Service) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, nonce, ok := s.sessions.ConsumeState(w, r)
	if !ok || r.URL.Query().Get("state") != state {
		httperrors.BadRequestError(w, r, errors.New("oauth state mismatch"), "invalid login state, please retry")
		return
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		httperrors.WriteError(w, r, fmt.Errorf("%w: provider returned %s", calendar.ErrAuthenticationRequired, msg))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httperrors.BadRequestError(w, r, errors.New("missing authorization code"), "missing authorization code")
		return
	}

	ident, err := s.idp.Exchange(ctx, code, nonce)
	if err != nil {
		httperrors.WriteError(w, r, fmt.Errorf("%w: %v", calendar.ErrAuthenticationRequired, err))
		return
	}

	rec, err := s.profiles.GetByEmail(ctx, ident.Email)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.WriteError(w, r, fmt.Errorf("%w: no profile provisioned for %s", calendar.ErrAuthorizationDenied, strings.ToLower(ident.Email)))
		return
	}
	if err != nil {
		httperrors.WriteError(w, r, calendar.AsProviderError("load profile", err))
		return
	}
	user, err := s.norm.User(rec)
	if err != nil {
		httperrors.WriteError(w, r, fmt.Errorf("%w: %v", calendar.ErrAuthenticationRequired, err))
		return
	}

	if err := s.profiles.RecordLogin(ctx, user.ID, ident.Subject); err != nil {
		httperrors.LogError(r, "record login", err)
	}
	sessionID, err := s.sessions.Issue(w, user.ID)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to issue session")
		return
	}
	if s.onLogin != nil {
		s.onLogin(user.ID, sessionID)
	}
	zerolog.Ctx(ctx).Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("signed in")
	s.hub.Publish(user.ID, &user)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout ends the current session.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	if sessionID := SessionIDFromContext(r.Context()); sessionID != "" && s.onLogout != nil {
		s.onLogout(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireSession restores the signed-in user from the session cookie. The
// profile is reloaded on every request so role changes apply immediately.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, userID, ok := s.sessions.Current(r)
		if !ok {
			s.unauthenticated(w, r, calendar.ErrAuthenticationRequired)
			return
		}

		ctx := r.Context()
		user, err := s.loadUser(ctx, userID)
		if err != nil {
			if errors.Is(err, calendar.ErrAuthenticationRequired) {
				s.sessions.Clear(w)
				s.unauthenticated(w, r, err)
				return
			}
			httperrors.WriteError(w, r, err)
			return
		}

		logger := zerolog.Ctx(ctx).With().Str("user_id", user.ID).Logger()
		ctx = logger.WithContext(ctx)
		ctx = WithUser(WithSessionID(ctx, sessionID), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects users whose role is not in roles.
func RequireRole(roles ...calendar.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				httperrors.WriteError(w, r, calendar.ErrAuthenticationRequired)
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httperrors.WriteError(w, r, calendar.ErrAuthorizationDenied)
		})
	}
}

func (s *Service) loadUser(ctx context.Context, userID string) (*calendar.User, error) {
	rec, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: profile removed", calendar.ErrAuthenticationRequired)
	}
	if err != nil {
		return nil, calendar.AsProviderError("load profile", err)
	}
	user, err := s.norm.User(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calendar.ErrAuthenticationRequired, err)
	}
	return &user, nil
}

func (s *Service) unauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.Method != http.MethodGet {
		httperrors.WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

// PublishProfile reports a profile change, or removal when u is nil, to
// every open dashboard of that user.
func (s *Service) PublishProfile(userID string, u *calendar.User) {
	s.hub.Publish(userID, u)
}

func (s *Service) IsAuthenticated(ctx context.Context) bool {
	_, ok := UserFromContext(ctx)
	return ok
}

func (s *Service) CurrentUser(ctx context.Context) (*calendar.User, error) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil, calendar.ErrAuthenticationRequired
	}
	return u, nil
}

func (s *Service) SubscribeAuthChanges(fn func(userID string, u *calendar.User)) func() {
	return s.hub.Subscribe(fn)
}
