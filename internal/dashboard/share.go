package dashboard

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jw6ventures/campuscal/internal/access"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/metrics"
)

// DefaultShareTTL is how long a share link stays valid unless configured otherwise.
const DefaultShareTTL = 30 * 24 * time.Hour

// ShareIssuer mints read-only share links. Every call is a fresh grant.
type ShareIssuer struct {
	backend Backend
	baseURL string
	ttl     time.Duration
}

func NewShareIssuer(backend Backend, baseURL string, ttl time.Duration) *ShareIssuer {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	return &ShareIssuer{backend: backend, baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl}
}

// CreateShareLink returns a URL embedding a new token for calendarID.
func (s *ShareIssuer) CreateShareLink(ctx context.Context, u *calendar.User, calendarID string) (string, error) {
	if err := access.Authorize(u, access.OpShare); err != nil {
		if u != nil {
			metrics.AuthorizationDenied(string(access.OpShare))
		}
		return "", err
	}
	if calendarID == "" {
		return "", calendar.ErrNotFound
	}
	token, err := s.backend.MintShareToken(ctx, calendarID, s.ttl)
	if err != nil {
		return "", calendar.AsProviderError("mint share token", err)
	}
	metrics.ShareLinkMinted()
	return s.baseURL + "/shared/" + url.PathEscape(token), nil
}
