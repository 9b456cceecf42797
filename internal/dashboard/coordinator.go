package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/jw6ventures/campuscal/internal/access"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/metrics"
)

// Coordinator applies event mutations. Capabilities are checked before any
// backend call; a refusal never reaches the backend.
type Coordinator struct {
	backend Backend
	norm    *calendar.Normalizer
}

func NewCoordinator(backend Backend, norm *calendar.Normalizer) *Coordinator {
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	return &Coordinator{backend: backend, norm: norm}
}

// Create stores draft and returns the event as the backend materialized it.
func (c *Coordinator) Create(ctx context.Context, u *calendar.User, draft calendar.Draft) (calendar.Event, error) {
	if err := c.authorize(u, access.OpCreate); err != nil {
		return calendar.Event{}, err
	}
	if err := draft.Validate(); err != nil {
		return calendar.Event{}, err
	}
	rec, err := c.backend.CreateEvent(ctx, draft)
	if err != nil {
		return calendar.Event{}, calendar.AsProviderError("create event", err)
	}
	return c.norm.Event(rec)
}

// Update sends only the fields present in patch.
func (c *Coordinator) Update(ctx context.Context, u *calendar.User, id string, patch calendar.Patch) (calendar.Event, error) {
	if err := c.authorize(u, access.OpEdit); err != nil {
		return calendar.Event{}, err
	}
	if id == "" {
		return calendar.Event{}, calendar.ErrNotFound
	}
	if err := patch.Validate(); err != nil {
		return calendar.Event{}, err
	}
	rec, err := c.backend.UpdateEvent(ctx, id, patch)
	if err != nil {
		return calendar.Event{}, calendar.AsProviderError("update event", err)
	}
	return c.norm.Event(rec)
}

// Move reschedules an event dragged to a new slot.
func (c *Coordinator) Move(ctx context.Context, u *calendar.User, id string, start, end time.Time) (calendar.Event, error) {
	return c.Update(ctx, u, id, calendar.Patch{Start: &start, End: &end})
}

// Resize changes an event's extent after a resize gesture.
func (c *Coordinator) Resize(ctx context.Context, u *calendar.User, id string, start, end time.Time) (calendar.Event, error) {
	return c.Update(ctx, u, id, calendar.Patch{Start: &start, End: &end})
}

// Delete removes the event unconditionally; confirmation is the caller's job.
func (c *Coordinator) Delete(ctx context.Context, u *calendar.User, id string) error {
	if err := c.authorize(u, access.OpDelete); err != nil {
		return err
	}
	if id == "" {
		return calendar.ErrNotFound
	}
	if err := c.backend.DeleteEvent(ctx, id); err != nil {
		return calendar.AsProviderError("delete event", err)
	}
	return nil
}

func (c *Coordinator) authorize(u *calendar.User, op access.Operation) error {
	err := access.Authorize(u, op)
	if errors.Is(err, calendar.ErrAuthorizationDenied) || errors.Is(err, calendar.ErrUnknownRole) {
		metrics.AuthorizationDenied(string(op))
	}
	return err
}
