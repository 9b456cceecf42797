// Package dashboard holds the per-session calendar dashboard: the event range
// fetcher, the mutation coordinator, the share-link issuer and the stateful
// View that ties them to a signed-in user.
package dashboard

import (
	"context"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Backend is the persistence provider behind the dashboard. It returns raw
// records; callers normalize them. Errors are expected to already be mapped
// onto the calendar error taxonomy.
type Backend interface {
	ListCalendars(ctx context.Context) ([]calendar.Record, error)
	ListEventTypes(ctx context.Context) ([]calendar.Record, error)
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error)
	ListEventsForUniversity(ctx context.Context, universityID string, start, end time.Time) ([]calendar.Record, error)
	CreateEvent(ctx context.Context, draft calendar.Draft) (calendar.Record, error)
	UpdateEvent(ctx context.Context, id string, patch calendar.Patch) (calendar.Record, error)
	DeleteEvent(ctx context.Context, id string) error
	MintShareToken(ctx context.Context, calendarID string, ttl time.Duration) (string, error)
}

// Authenticator exposes the signed-in identity and its changes.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*calendar.User, error)
	// SubscribeAuthChanges calls fn whenever the profile behind userID changes;
	// u is nil once the user is signed out or removed.
	SubscribeAuthChanges(fn func(userID string, u *calendar.User)) (unsubscribe func())
}
