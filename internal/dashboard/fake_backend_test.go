package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

type rangeCall struct {
	id         string
	start, end time.Time
}

// fakeBackend is an in-memory Backend recording every call.
type fakeBackend struct {
	mu sync.Mutex

	calendars  []calendar.Record
	eventTypes []calendar.Record
	events     map[string][]calendar.Record // by calendar id
	university map[string][]calendar.Record // by university id

	err     error
	block   map[string]chan struct{}
	started chan string

	calls         []string
	rangeCalls    []rangeCall
	patches       []calendar.Patch
	drafts        []calendar.Draft
	deleted       []string
	tokenCount    int
	lastTTL       time.Duration
	createdRecord calendar.Record
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:     map[string][]calendar.Record{},
		university: map[string][]calendar.Record{},
		block:      map[string]chan struct{}{},
		started:    make(chan string, 16),
	}
}

func (f *fakeBackend) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) callsTo(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeBackend) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// hold makes the next ListEvents calls for calendarID wait for the returned release.
func (f *fakeBackend) hold(calendarID string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block[calendarID] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.block, calendarID)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fakeBackend) ListCalendars(ctx context.Context) ([]calendar.Record, error) {
	if err := f.record("ListCalendars"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.Record{}, f.calendars...), nil
}

func (f *fakeBackend) ListEventTypes(ctx context.Context) ([]calendar.Record, error) {
	if err := f.record("ListEventTypes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.Record{}, f.eventTypes...), nil
}

func (f *fakeBackend) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error) {
	f.mu.Lock()
	ch := f.block[calendarID]
	f.mu.Unlock()
	if ch != nil {
		f.started <- calendarID
		<-ch
	}
	if err := f.record("ListEvents"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls = append(f.rangeCalls, rangeCall{id: calendarID, start: start, end: end})
	return append([]calendar.Record{}, f.events[calendarID]...), nil
}

func (f *fakeBackend) ListEventsForUniversity(ctx context.Context, universityID string, start, end time.Time) ([]calendar.Record, error) {
	if err := f.record("ListEventsForUniversity"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls = append(f.rangeCalls, rangeCall{id: universityID, start: start, end: end})
	return append([]calendar.Record{}, f.university[universityID]...), nil
}

func (f *fakeBackend) CreateEvent(ctx context.Context, draft calendar.Draft) (calendar.Record, error) {
	if err := f.record("CreateEvent"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	rec := f.createdRecord
	if rec == nil {
		return nil, errors.New("no record configured")
	}
	f.events[draft.CalendarID] = append(f.events[draft.CalendarID], rec)
	return rec, nil
}

func (f *fakeBackend) UpdateEvent(ctx context.Context, id string, patch calendar.Patch) (calendar.Record, error) {
	if err := f.record("UpdateEvent"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	for _, recs := range f.events {
		for _, rec := range recs {
			if rec["id"] == id {
				if patch.Title != nil {
					rec["title"] = *patch.Title
				}
				if patch.Start != nil {
					rec["start_time"] = *patch.Start
				}
				if patch.End != nil {
					rec["end_time"] = *patch.End
				}
				return rec, nil
			}
		}
	}
	return nil, calendar.ErrNotFound
}

func (f *fakeBackend) DeleteEvent(ctx context.Context, id string) error {
	if err := f.record("DeleteEvent"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	for cal, recs := range f.events {
		kept := recs[:0]
		for _, rec := range recs {
			if rec["id"] != id {
				kept = append(kept, rec)
			}
		}
		f.events[cal] = kept
	}
	return nil
}

func (f *fakeBackend) MintShareToken(ctx context.Context, calendarID string, ttl time.Duration) (string, error) {
	if err := f.record("MintShareToken"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCount++
	f.lastTTL = ttl
	return fmt.Sprintf("tok-%s-%d", calendarID, f.tokenCount), nil
}

func strPtr(s string) *string { return &s }

func calRecord(id, name, university, category string) calendar.Record {
	rec := calendar.Record{"id": id, "name": name, "category": category}
	if university != "" {
		rec["university_id"] = university
	}
	return rec
}

func eventRecord(id, calendarID string, start time.Time, d time.Duration) calendar.Record {
	return calendar.Record{
		"id":          id,
		"title":       "Event " + id,
		"calendar_id": calendarID,
		"start_time":  start,
		"end_time":    start.Add(d),
	}
}
