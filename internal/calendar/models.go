package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles controlling capability grants.
type Role string

const (
	RoleStudent    Role = "student"
	RoleTeacher    Role = "teacher"
	RoleProgramOps Role = "program_ops"
	RolePM         Role = "PM"
	RoleCOS        Role = "COS"
	RoleOrgAdmin   Role = "org_admin"
	RoleGuest      Role = "guest"
)

// Roles lists every valid role.
var Roles = []Role{RoleStudent, RoleTeacher, RoleProgramOps, RolePM, RoleCOS, RoleOrgAdmin, RoleGuest}

// ParseRole validates an untrusted role tag. Matching is exact: "pm" is not "PM".
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Category classifies calendars and event types.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategoryEvent    Category = "event"
	CategoryAdmin    Category = "admin"
)

// ParseCategory validates a calendar category. An empty value yields the default, event.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return CategoryEvent, nil
	case CategoryAcademic:
		return CategoryAcademic, nil
	case CategoryEvent:
		return CategoryEvent, nil
	case CategoryAdmin:
		return CategoryAdmin, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ViewMode selects the grid layout and therefore the fetch window.
type ViewMode string

const (
	ViewMonth  ViewMode = "month"
	ViewWeek   ViewMode = "week"
	ViewAgenda ViewMode = "agenda"
	ViewYear   ViewMode = "year"
)

// ParseViewMode validates a view mode.
func ParseViewMode(s string) (ViewMode, error) {
	switch v := ViewMode(strings.ToLower(s)); v {
	case ViewMonth, ViewWeek, ViewAgenda, ViewYear:
		return v, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// User is an authenticated account.
type User struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	DisplayName    string  `json:"displayName"`
	Role           Role    `json:"role"`
	UniversityID   *string `json:"universityId,omitempty"`
	UniversityName *string `json:"universityName,omitempty"`
}

// Calendar is a physical event container or, for aggregates, a university-wide view.
type Calendar struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	OwnerID        *string  `json:"ownerId,omitempty"`
	UniversityID   *string  `json:"universityId,omitempty"`
	UniversityName *string  `json:"universityName,omitempty"`
	Category       Category `json:"category"`
	IsPublic       bool     `json:"isPublic"`
}

// IsAggregate reports whether the calendar represents the union of every
// calendar of its university rather than a container of its own.
func (c *Calendar) IsAggregate() bool {
	return c.Category == CategoryAdmin || strings.Contains(strings.ToLower(c.Name), "main")
}

// EventType labels events with a name and display colour.
type EventType struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Category *Category `json:"category,omitempty"`
}

// EffectiveCategory treats uncategorised types as event types.
func (t EventType) EffectiveCategory() Category {
	if t.Category == nil {
		return CategoryEvent
	}
	return *t.Category
}

// EventSource annotates events returned by an aggregate fetch.
type EventSource struct {
	CalendarName     string   `json:"calendarName,omitempty"`
	CalendarCategory Category `json:"calendarCategory,omitempty"`
	EventTypeName    string   `json:"eventTypeName,omitempty"`
	EventTypeColor   string   `json:"eventTypeColor,omitempty"`
}

// Event is a normalized calendar event.
type Event struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	CalendarID  string       `json:"calendarId"`
	EventTypeID *string      `json:"eventTypeId,omitempty"`
	AllDay      bool         `json:"allDay"`
	Location    *string      `json:"location,omitempty"`
	Source      *EventSource `json:"source,omitempty"`
	// Imputed is set when start or end was absent and replaced with the current instant.
	Imputed bool `json:"imputed,omitempty"`
}

// Overlaps reports whether the event intersects r.
func (e Event) Overlaps(r Range) bool {
	return !e.Start.After(r.End) && !e.End.Before(r.Start)
}

// Draft is the payload for creating an event.
type Draft struct {
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	CalendarID  string    `json:"calendarId"`
	EventTypeID *string   `json:"eventTypeId,omitempty"`
	AllDay      bool      `json:"allDay"`
	Location    *string   `json:"location,omitempty"`
}

// Validate checks the fields the backend cannot default.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.CalendarID) == "" {
		return fmt.Errorf("%w: calendar is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDraft)
	}
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDraft)
	}
	if d.End.Before(d.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidDraft)
	}
	return nil
}

// Patch is a sparse event update. Nil fields are left untouched by the backend.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	EventTypeID *string    `json:"eventTypeId,omitempty"`
	AllDay      *bool      `json:"allDay,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Start == nil && p.End == nil &&
		p.EventTypeID == nil && p.AllDay == nil && p.Location == nil
}

// Validate rejects patches that are empty or invert a present start/end pair.
func (p Patch) Validate() error {
	if p.Empty() {
		return fmt.Errorf("%w: empty patch", ErrInvalidDraft)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be blank", ErrInvalidDraft)
	}
	if p.Start != nil && p.End != nil && p.End.Before(*p.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidDraft)
	}
	return nil
}
