// Package feed serves the read-only event feed behind a share link, as JSON
// or as an iCalendar file.
package feed

import (
	"context"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
)

const productID = "-//campuscal//share feed//EN"

// Resolver turns a share token into the calendar it grants.
type Resolver interface {
	ResolveShare(ctx context.Context, token string) (calendar.Record, error)
}

// Feed is the content behind one share link.
type Feed struct {
	Calendar   calendar.Calendar    `json:"calendar"`
	Range      calendar.Range       `json:"range"`
	Events     []calendar.Event     `json:"events"`
	EventTypes []calendar.EventType `json:"eventTypes"`
}

type Service struct {
	backend   dashboard.Backend
	resolver  Resolver
	fetcher   *dashboard.Fetcher
	norm      *calendar.Normalizer
	weekStart time.Weekday
	loc       *time.Location
	now       func() time.Time
}

func NewService(backend dashboard.Backend, resolver Resolver, fetcher *dashboard.Fetcher, norm *calendar.Normalizer, weekStart time.Weekday, loc *time.Location) *Service {
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{backend: backend, resolver: resolver, fetcher: fetcher, norm: norm, weekStart: weekStart, loc: loc, now: time.Now}
}

// Window is the period a share feed covers: the agenda window around now
// extended by twelve months.
func Window(now time.Time, weekStart time.Weekday) calendar.Range {
	rng := calendar.RangeFor(now, calendar.ViewAgenda, weekStart)
	rng.End = rng.End.AddDate(0, 12, 0)
	return rng
}

// Load resolves token and collects the events of its calendar.
func (s *Service) Load(ctx context.Context, token string) (Feed, error) {
	rec, err := s.resolver.ResolveShare(ctx, token)
	if err != nil {
		return Feed{}, err
	}
	cal, err := s.norm.Calendar(rec)
	if err != nil {
		return Feed{}, err
	}

	rng := Window(s.now().In(s.loc), s.weekStart)
	res, err := s.fetcher.FetchRange(ctx, &cal, rng)
	if err != nil {
		return Feed{}, err
	}

	typeRecs, err := s.backend.ListEventTypes(ctx)
	if err != nil {
		return Feed{}, calendar.AsProviderError("list event types", err)
	}
	types, err := s.norm.EventTypes(typeRecs)
	if err != nil {
		return Feed{}, err
	}
	return Feed{Calendar: cal, Range: res.Range, Events: res.Events, EventTypes: types}, nil
}

// WriteICS renders f as an iCalendar document.
func WriteICS(w io.Writer, f Feed, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(f.Calendar.Name)
	if f.Calendar.Description != nil {
		cal.SetXWRCalDesc(*f.Calendar.Description)
	}

	typeNames := make(map[string]string, len(f.EventTypes))
	for _, t := range f.EventTypes {
		typeNames[t.ID] = t.Name
	}

	for _, ev := range f.Events {
		vevent := cal.AddEvent(ev.ID)
		vevent.SetDtStampTime(stamp.UTC())
		vevent.SetSummary(ev.Title)
		if ev.AllDay {
			vevent.SetAllDayStartAt(ev.Start)
			// DTEND is exclusive for all-day events.
			vevent.SetAllDayEndAt(ev.End.AddDate(0, 0, 1))
		} else {
			vevent.SetStartAt(ev.Start.UTC())
			vevent.SetEndAt(ev.End.UTC())
		}
		if ev.Description != nil {
			vevent.SetDescription(*ev.Description)
		}
		if ev.Location != nil {
			vevent.SetLocation(*ev.Location)
		}
		if category := categoryName(ev, typeNames); category != "" {
			vevent.AddProperty(ical.ComponentPropertyCategories, category)
		}
	}

	return cal.SerializeTo(w)
}

func categoryName(ev calendar.Event, typeNames map[string]string) string {
	if ev.EventTypeID != nil {
		if name, ok := typeNames[*ev.EventTypeID]; ok {
			return name
		}
	}
	if ev.Source != nil {
		return ev.Source.EventTypeName
	}
	return ""
}
