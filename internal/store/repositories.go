package store

import (
	"context"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Read methods return raw rows as calendar.Record; callers normalize them.

// UniversityRepository lists universities. Creation lives on Store since it
// also provisions the default calendars.
type UniversityRepository interface {
	List(ctx context.Context) ([]calendar.Record, error)
	GetByName(ctx context.Context, name string) (calendar.Record, error)
}

// ProfileRepository manages pre-provisioned user profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (calendar.Record, error)
	GetByEmail(ctx context.Context, email string) (calendar.Record, error)
	List(ctx context.Context) ([]calendar.Record, error)
	Create(ctx context.Context, in ProfileInput) (calendar.Record, error)
	CreateIfMissing(ctx context.Context, in ProfileInput) (bool, error)
	Update(ctx context.Context, id string, in ProfileInput) (calendar.Record, error)
	Delete(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id, subject string) error
}

// CalendarRepository reads calendars.
type CalendarRepository interface {
	List(ctx context.Context) ([]calendar.Record, error)
	GetByID(ctx context.Context, id string) (calendar.Record, error)
	CreateIfMissing(ctx context.Context, in CalendarInput) (bool, error)
}

// EventTypeRepository manages event types.
type EventTypeRepository interface {
	List(ctx context.Context) ([]calendar.Record, error)
	Upsert(ctx context.Context, in EventTypeInput) (calendar.Record, error)
}

// EventRepository handles event storage.
type EventRepository interface {
	ListForCalendar(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error)
	ListForUniversity(ctx context.Context, universityID string, start, end time.Time) ([]calendar.Record, error)
	Create(ctx context.Context, draft calendar.Draft) (calendar.Record, error)
	Update(ctx context.Context, id string, patch calendar.Patch) (calendar.Record, error)
	Delete(ctx context.Context, id string) error
}

// ShareTokenRepository tracks issued share links.
type ShareTokenRepository interface {
	Create(ctx context.Context, token ShareToken) error
	GetActive(ctx context.Context, id string, now time.Time) (*ShareToken, error)
	Revoke(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
