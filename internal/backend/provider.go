// Package backend adapts the PostgreSQL store to the dashboard's provider
// contract and folds store errors onto the calendar error taxonomy.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	"github.com/jw6ventures/campuscal/internal/sharetoken"
	"github.com/jw6ventures/campuscal/internal/store"
)

var _ dashboard.Backend = (*Provider)(nil)

// Provider implements dashboard.Backend.
type Provider struct {
	calendars  store.CalendarRepository
	eventTypes store.EventTypeRepository
	events     store.EventRepository
	shares     store.ShareTokenRepository
	signer     *sharetoken.Signer
	now        func() time.Time
}

func New(s *store.Store, signer *sharetoken.Signer) *Provider {
	return &Provider{
		calendars:  s.Calendars,
		eventTypes: s.EventTypes,
		events:     s.Events,
		shares:     s.ShareTokens,
		signer:     signer,
		now:        time.Now,
	}
}

func (p *Provider) ListCalendars(ctx context.Context) ([]calendar.Record, error) {
	recs, err := p.calendars.List(ctx)
	return recs, mapError("list calendars", err)
}

func (p *Provider) ListEventTypes(ctx context.Context) ([]calendar.Record, error) {
	recs, err := p.eventTypes.List(ctx)
	return recs, mapError("list event types", err)
}

func (p *Provider) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error) {
	recs, err := p.events.ListForCalendar(ctx, calendarID, start, end)
	return recs, mapError("list events", err)
}

func (p *Provider) ListEventsForUniversity(ctx context.Context, universityID string, start, end time.Time) ([]calendar.Record, error) {
	recs, err := p.events.ListForUniversity(ctx, universityID, start, end)
	return recs, mapError("list university events", err)
}

func (p *Provider) CreateEvent(ctx context.Context, draft calendar.Draft) (calendar.Record, error) {
	rec, err := p.events.Create(ctx, draft)
	return rec, mapError("create event", err)
}

func (p *Provider) UpdateEvent(ctx context.Context, id string, patch calendar.Patch) (calendar.Record, error) {
	rec, err := p.events.Update(ctx, id, patch)
	return rec, mapError("update event", err)
}

func (p *Provider) DeleteEvent(ctx context.Context, id string) error {
	return mapError("delete event", p.events.Delete(ctx, id))
}

// MintShareToken signs a token for an existing calendar and records its ID
// so the link can be revoked or purged later.
func (p *Provider) MintShareToken(ctx context.Context, calendarID string, ttl time.Duration) (string, error) {
	if _, err := p.calendars.GetByID(ctx, calendarID); err != nil {
		return "", mapError("mint share token", err)
	}
	token, id, expiresAt, err := p.signer.Mint(calendarID, ttl)
	if err != nil {
		return "", mapError("mint share token", err)
	}
	err = p.shares.Create(ctx, store.ShareToken{ID: id, CalendarID: calendarID, ExpiresAt: expiresAt})
	if err != nil {
		return "", mapError("mint share token", err)
	}
	return token, nil
}

// ResolveShare verifies a share token and returns the calendar record it
// grants read access to. Invalid, expired and revoked tokens read as not found.
func (p *Provider) ResolveShare(ctx context.Context, token string) (calendar.Record, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("share token: %w", calendar.ErrNotFound)
	}
	stored, err := p.shares.GetActive(ctx, claims.ID, p.now())
	if err != nil {
		return nil, mapError("resolve share token", err)
	}
	if stored.CalendarID != claims.CalendarID {
		return nil, fmt.Errorf("share token: %w", calendar.ErrNotFound)
	}
	rec, err := p.calendars.GetByID(ctx, stored.CalendarID)
	return rec, mapError("resolve share token", err)
}

// RevokeShare invalidates a share token before it expires.
func (p *Provider) RevokeShare(ctx context.Context, token string) error {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return fmt.Errorf("share token: %w", calendar.ErrNotFound)
	}
	return mapError("revoke share token", p.shares.Revoke(ctx, claims.ID))
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, calendar.ErrNotFound)
	case errors.Is(err, store.ErrInvalidInput):
		return fmt.Errorf("%w: %v", calendar.ErrInvalidDraft, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &calendar.ProviderError{Op: op, Message: "request cancelled", Err: err}
	}
	return calendar.AsProviderError(op, err)
}
