package store

import (
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// ProfileInput is the writable part of a profile.
type ProfileInput struct {
	Email        string
	DisplayName  *string
	Role         calendar.Role
	UniversityID *string
}

// CalendarInput describes a calendar created by an administrator or the seed file.
type CalendarInput struct {
	Name         string
	Description  *string
	UniversityID *string
	OwnerID      *string
	Category     calendar.Category
	IsPublic     bool
}

// EventTypeInput describes an event type.
type EventTypeInput struct {
	Name     string
	Color    string
	Category *calendar.Category
}

// ShareToken is the stored half of a share link; the token itself is signed
// and carries this ID.
type ShareToken struct {
	ID         string
	CalendarID string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// defaultCalendar is created alongside every university.
type defaultCalendar struct {
	name     string
	category calendar.Category
}

func defaultCalendars(university string) []defaultCalendar {
	return []defaultCalendar{
		{name: university + " - Academic Calendar", category: calendar.CategoryAcademic},
		{name: university + " - Events Calendar", category: calendar.CategoryEvent},
	}
}
