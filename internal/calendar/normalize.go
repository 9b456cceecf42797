package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a raw backend row or decoded JSON object. Field naming is not
// consistent across sources, so every lookup goes through a fallback chain.
type Record map[string]any

// Field fallback chains, in priority order. A dotted key reads a nested object.
var (
	idKeys             = []string{"id"}
	emailKeys          = []string{"email", "primary_email"}
	displayNameKeys    = []string{"displayName", "display_name", "name", "full_name"}
	roleKeys           = []string{"role"}
	universityIDKeys   = []string{"universityId", "university_id", "universities.id", "university.id"}
	universityNameKeys = []string{"universityName", "university_name", "universities.name", "university.name"}

	nameKeys        = []string{"name"}
	descriptionKeys = []string{"description"}
	ownerIDKeys     = []string{"ownerId", "owner_id", "created_by"}
	categoryKeys    = []string{"category"}
	isPublicKeys    = []string{"isPublic", "is_public", "public"}
	colorKeys       = []string{"color", "colour"}

	titleKeys       = []string{"title", "summary"}
	startKeys       = []string{"start", "start_time", "startTime", "starts_at", "start_at", "dtstart"}
	endKeys         = []string{"end", "end_time", "endTime", "ends_at", "end_at", "dtend"}
	calendarIDKeys  = []string{"calendarId", "calendar_id"}
	eventTypeIDKeys = []string{"eventTypeId", "event_type_id"}
	allDayKeys      = []string{"allDay", "all_day"}
	locationKeys    = []string{"location"}
	imputedKeys     = []string{"imputed"}

	sourceCalendarNameKeys     = []string{"source.calendarName", "calendar_name", "calendarName", "calendars.name", "calendar.name"}
	sourceCalendarCategoryKeys = []string{"source.calendarCategory", "calendar_category", "calendarCategory", "calendars.category", "calendar.category"}
	sourceTypeNameKeys         = []string{"source.eventTypeName", "event_type_name", "eventTypeName", "event_types.name", "event_type.name"}
	sourceTypeColorKeys        = []string{"source.eventTypeColor", "event_type_color", "eventTypeColor", "event_types.color", "event_type.color"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer maps raw records onto canonical entities. It holds no state other
// than the clock used when an event arrives without start or end.
type Normalizer struct {
	Now func() time.Time
	// Location interprets timestamps that carry no zone. Defaults to UTC.
	Location *time.Location
}

// NewNormalizer returns a normalizer using the wall clock and UTC.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now, Location: time.UTC}
}

func (n *Normalizer) now() time.Time {
	if n == nil || n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

func (n *Normalizer) location() *time.Location {
	if n == nil || n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// User normalizes a profile record. Unknown roles are rejected.
func (n *Normalizer) User(rec Record) (User, error) {
	const kind = "user"
	id, err := requiredID(rec, kind, idKeys)
	if err != nil {
		return User{}, err
	}
	email, err := requiredString(rec, kind, emailKeys)
	if err != nil {
		return User{}, err
	}
	rawRole, err := requiredString(rec, kind, roleKeys)
	if err != nil {
		return User{}, err
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return User{}, &MalformedRecordError{Kind: kind, Field: "role", Err: err}
	}

	name := optionalString(rec, displayNameKeys)
	display := email
	if name != nil {
		display = *name
	}

	return User{
		ID:             id,
		Email:          email,
		DisplayName:    display,
		Role:           role,
		UniversityID:   optionalID(rec, universityIDKeys),
		UniversityName: optionalString(rec, universityNameKeys),
	}, nil
}

// Calendar normalizes a calendar record. A missing category defaults to event.
func (n *Normalizer) Calendar(rec Record) (Calendar, error) {
	const kind = "calendar"
	id, err := requiredID(rec, kind, idKeys)
	if err != nil {
		return Calendar{}, err
	}
	name, err := requiredString(rec, kind, nameKeys)
	if err != nil {
		return Calendar{}, err
	}
	category, err := categoryField(rec, kind)
	if err != nil {
		return Calendar{}, err
	}
	public, err := optionalBool(rec, kind, isPublicKeys)
	if err != nil {
		return Calendar{}, err
	}
	return Calendar{
		ID:             id,
		Name:           name,
		Description:    optionalString(rec, descriptionKeys),
		OwnerID:        optionalID(rec, ownerIDKeys),
		UniversityID:   optionalID(rec, universityIDKeys),
		UniversityName: optionalString(rec, universityNameKeys),
		Category:       category,
		IsPublic:       public,
	}, nil
}

// Calendars normalizes a list, stopping at the first malformed record.
func (n *Normalizer) Calendars(recs []Record) ([]Calendar, error) {
	out := make([]Calendar, 0, len(recs))
	for _, rec := range recs {
		cal, err := n.Calendar(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, cal)
	}
	return out, nil
}

// EventType normalizes an event type record.
func (n *Normalizer) EventType(rec Record) (EventType, error) {
	const kind = "event type"
	id, err := requiredID(rec, kind, idKeys)
	if err != nil {
		return EventType{}, err
	}
	name, err := requiredString(rec, kind, nameKeys)
	if err != nil {
		return EventType{}, err
	}
	et := EventType{ID: id, Name: name}
	if color := optionalString(rec, colorKeys); color != nil {
		et.Color = *color
	}
	if raw := optionalString(rec, categoryKeys); raw != nil {
		c, err := ParseCategory(*raw)
		if err != nil {
			return EventType{}, &MalformedRecordError{Kind: kind, Field: "category", Err: err}
		}
		et.Category = &c
	}
	return et, nil
}

// EventTypes normalizes and deduplicates event types by case-insensitive name.
func (n *Normalizer) EventTypes(recs []Record) ([]EventType, error) {
	out := make([]EventType, 0, len(recs))
	for _, rec := range recs {
		et, err := n.EventType(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return DedupeEventTypes(out), nil
}

// DedupeEventTypes keeps the first occurrence of every case-insensitive name,
// preserving input order.
func DedupeEventTypes(types []EventType) []EventType {
	seen := make(map[string]struct{}, len(types))
	out := make([]EventType, 0, len(types))
	for _, et := range types {
		key := strings.ToLower(strings.TrimSpace(et.Name))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, et)
	}
	return out
}

// Event normalizes an event record. Absent start or end become the current
// instant and mark the event as imputed; unparseable values are malformed.
func (n *Normalizer) Event(rec Record) (Event, error) {
	const kind = "event"
	id, err := requiredID(rec, kind, idKeys)
	if err != nil {
		return Event{}, err
	}
	title, err := requiredString(rec, kind, titleKeys)
	if err != nil {
		return Event{}, err
	}
	calendarID, err := requiredID(rec, kind, calendarIDKeys)
	if err != nil {
		return Event{}, err
	}
	allDay, err := optionalBool(rec, kind, allDayKeys)
	if err != nil {
		return Event{}, err
	}
	imputed, err := optionalBool(rec, kind, imputedKeys)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		ID:          id,
		Title:       title,
		Description: optionalString(rec, descriptionKeys),
		CalendarID:  calendarID,
		EventTypeID: optionalID(rec, eventTypeIDKeys),
		AllDay:      allDay,
		Location:    optionalString(rec, locationKeys),
		Imputed:     imputed,
	}

	start, ok, err := n.timeField(rec, kind, startKeys)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		start = n.now()
		ev.Imputed = true
	}
	end, ok, err := n.timeField(rec, kind, endKeys)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		end = n.now()
		ev.Imputed = true
	}
	if end.Before(start) {
		end = start
	}
	ev.Start, ev.End = start, end

	src := EventSource{}
	if v := optionalString(rec, sourceCalendarNameKeys); v != nil {
		src.CalendarName = *v
	}
	if v := optionalString(rec, sourceCalendarCategoryKeys); v != nil {
		if c, err := ParseCategory(*v); err == nil {
			src.CalendarCategory = c
		}
	}
	if v := optionalString(rec, sourceTypeNameKeys); v != nil {
		src.EventTypeName = *v
	}
	if v := optionalString(rec, sourceTypeColorKeys); v != nil {
		src.EventTypeColor = *v
	}
	if src != (EventSource{}) {
		ev.Source = &src
	}
	return ev, nil
}

// Events normalizes a list, stopping at the first malformed record.
func (n *Normalizer) Events(recs []Record) ([]Event, error) {
	out := make([]Event, 0, len(recs))
	for _, rec := range recs {
		ev, err := n.Event(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (n *Normalizer) timeField(rec Record, kind string, keys []string) (time.Time, bool, error) {
	raw, key, ok := lookup(rec, keys)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := parseTime(raw, n.location())
	if err != nil {
		return time.Time{}, false, &MalformedRecordError{Kind: kind, Field: key, Err: err}
	}
	return t, true, nil
}

func categoryField(rec Record, kind string) (Category, error) {
	raw := optionalString(rec, categoryKeys)
	if raw == nil {
		return CategoryEvent, nil
	}
	c, err := ParseCategory(*raw)
	if err != nil {
		return "", &MalformedRecordError{Kind: kind, Field: "category", Err: err}
	}
	return c, nil
}

// lookup returns the first non-nil value found along keys.
func lookup(rec Record, keys []string) (any, string, bool) {
	for _, key := range keys {
		if v, ok := lookupPath(rec, key); ok && v != nil {
			return v, key, true
		}
	}
	return nil, "", false
}

func lookupPath(rec Record, key string) (any, bool) {
	head, rest, nested := strings.Cut(key, ".")
	v, ok := rec[head]
	if !ok || !nested {
		return v, ok
	}
	switch m := v.(type) {
	case Record:
		return lookupPath(m, rest)
	case map[string]any:
		return lookupPath(Record(m), rest)
	}
	return nil, false
}

func requiredID(rec Record, kind string, keys []string) (string, error) {
	raw, key, ok := lookup(rec, keys)
	if !ok {
		return "", &MalformedRecordError{Kind: kind, Field: keys[0]}
	}
	id, err := coerceID(raw)
	if err != nil {
		return "", &MalformedRecordError{Kind: kind, Field: key, Err: err}
	}
	if id == "" {
		return "", &MalformedRecordError{Kind: kind, Field: key}
	}
	return id, nil
}

func requiredString(rec Record, kind string, keys []string) (string, error) {
	v := optionalString(rec, keys)
	if v == nil {
		return "", &MalformedRecordError{Kind: kind, Field: keys[0]}
	}
	return *v, nil
}

func optionalID(rec Record, keys []string) *string {
	raw, _, ok := lookup(rec, keys)
	if !ok {
		return nil
	}
	id, err := coerceID(raw)
	if err != nil || id == "" {
		return nil
	}
	return &id
}

func optionalString(rec Record, keys []string) *string {
	for _, key := range keys {
		raw, ok := lookupPath(rec, key)
		if !ok || raw == nil {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				continue
			}
			s = *v
		case fmt.Stringer:
			s = v.String()
		default:
			continue
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		return &s
	}
	return nil
}

func optionalBool(rec Record, kind string, keys []string) (bool, error) {
	raw, key, ok := lookup(rec, keys)
	if !ok {
		return false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case *bool:
		return v != nil && *v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &MalformedRecordError{Kind: kind, Field: key, Err: err}
		}
		return b, nil
	}
	return false, &MalformedRecordError{Kind: kind, Field: key, Err: fmt.Errorf("unexpected %T", raw)}
}

// ID returns the record's id as a string, accepting every id encoding the
// normalizer does. An absent or unusable id yields "".
func (r Record) ID() string {
	id, err := coerceID(r["id"])
	if err != nil {
		return ""
	}
	return id
}

func coerceID(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case *string:
		if v == nil {
			return "", nil
		}
		return strings.TrimSpace(*v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v != math.Trunc(v) {
			return "", fmt.Errorf("non-integer id %v", v)
		}
		return strconv.FormatInt(int64(v), 10), nil
	case json.Number:
		return v.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("unsupported id type %T", raw)
}

func parseTime(raw any, loc *time.Location) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, errors.New("nil time")
		}
		return *v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time %q", v)
	case float64:
		return time.Unix(int64(v), 0).In(loc), nil
	case int64:
		return time.Unix(v, 0).In(loc), nil
	case json.Number:
		secs, err := v.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time type %T", raw)
}
