package feed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
)

type fakeBackend struct {
	dashboard.Backend
	events      []calendar.Record
	listedStart time.Time
	listedEnd   time.Time
}

func (f *fakeBackend) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error) {
	f.listedStart, f.listedEnd = start, end
	return f.events, nil
}

func (f *fakeBackend) ListEventTypes(ctx context.Context) ([]calendar.Record, error) {
	return []calendar.Record{{"id": "t1", "name": "Exam", "color": "#f97316", "category": "academic"}}, nil
}

type fakeResolver map[string]calendar.Record

func (f fakeResolver) ResolveShare(ctx context.Context, token string) (calendar.Record, error) {
	rec, ok := f[token]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	return rec, nil
}

func newTestService(b *fakeBackend, now time.Time) *Service {
	norm := calendar.NewNormalizer()
	resolver := fakeResolver{"tok": {"id": "c1", "name": "North - Academic Calendar", "category": "academic"}}
	s := NewService(b, resolver, dashboard.NewFetcher(b, norm, time.Sunday, zerolog.Nop()), norm, time.Sunday, time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	rng := Window(now, time.Sunday)
	if !rng.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", rng.Start)
	}
	agenda := calendar.RangeFor(now, calendar.ViewAgenda, time.Sunday)
	if !rng.End.Equal(agenda.End.AddDate(0, 12, 0)) {
		t.Errorf("end = %v, want agenda end plus a year", rng.End)
	}
}

func TestLoadCollectsEventsInWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{events: []calendar.Record{
		{"id": "e2", "title": "Final", "calendar_id": "c1", "start_time": "2024-12-10T09:00:00Z", "end_time": "2024-12-10T11:00:00Z", "event_type_id": "t1"},
		{"id": "e1", "title": "Midterm", "calendar_id": "c1", "start_time": "2024-03-20T09:00:00Z", "end_time": "2024-03-20T11:00:00Z"},
		{"id": "old", "title": "Last year", "calendar_id": "c1", "start_time": "2023-01-01T09:00:00Z", "end_time": "2023-01-01T10:00:00Z"},
	}}
	s := newTestService(b, now)

	f, err := s.Load(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Calendar.ID != "c1" {
		t.Errorf("calendar = %+v", f.Calendar)
	}
	if len(f.Events) != 2 || f.Events[0].ID != "e1" || f.Events[1].ID != "e2" {
		t.Fatalf("events = %+v", f.Events)
	}
	if !b.listedStart.Equal(f.Range.Start) || !b.listedEnd.Equal(f.Range.End) {
		t.Error("backend should be queried with the feed window")
	}
	if len(f.EventTypes) != 1 {
		t.Errorf("event types = %+v", f.EventTypes)
	}
}

func TestLoadUnknownToken(t *testing.T) {
	s := newTestService(&fakeBackend{}, time.Now())
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestWriteICS(t *testing.T) {
	typeID := "t1"
	loc := "Hall B"
	f := Feed{
		Calendar: calendar.Calendar{ID: "c1", Name: "North - Academic Calendar"},
		EventTypes: []calendar.EventType{
			{ID: "t1", Name: "Exam", Color: "#f97316"},
		},
		Events: []calendar.Event{
			{
				ID: "e1", Title: "Midterm", CalendarID: "c1", EventTypeID: &typeID, Location: &loc,
				Start: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 3, 20, 11, 0, 0, 0, time.UTC),
			},
			{
				ID: "e2", Title: "Spring break", CalendarID: "c1", AllDay: true,
				Start: time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC),
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteICS(&buf, f, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "X-WR-CALNAME:North - Academic Calendar", "SUMMARY:Midterm", "CATEGORIES:Exam", "LOCATION:Hall B", "DTSTART;VALUE=DATE:20240325", "DTEND;VALUE=DATE:20240330"} {
		if !strings.Contains(out, want) {
			t.Errorf("ics output missing %q:\n%s", want, out)
		}
	}

	parsed, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar() error = %v", err)
	}
	if got := len(parsed.Events()); got != 2 {
		t.Errorf("parsed %d events, want 2", got)
	}
}
