package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/metrics"
)

// Result is one event window fetched for the active calendar.
type Result struct {
	Range  calendar.Range
	Events []calendar.Event
	// Aggregate is set when events were collected across a university.
	Aggregate bool
	// Degraded is set when an aggregate calendar had no university and was
	// read as a single calendar instead.
	Degraded bool
}

// Fetcher picks the fetch strategy for the active calendar and returns the
// normalized events of the visible window.
type Fetcher struct {
	backend   Backend
	norm      *calendar.Normalizer
	weekStart time.Weekday
	log       zerolog.Logger
}

func NewFetcher(backend Backend, norm *calendar.Normalizer, weekStart time.Weekday, log zerolog.Logger) *Fetcher {
	if norm == nil {
		norm = calendar.NewNormalizer()
	}
	return &Fetcher{backend: backend, norm: norm, weekStart: weekStart, log: log}
}

// Fetch returns the events of active overlapping the window of mode around
// anchor, sorted by start then id. A nil calendar yields an empty result
// without touching the backend.
func (f *Fetcher) Fetch(ctx context.Context, active *calendar.Calendar, anchor time.Time, mode calendar.ViewMode) (Result, error) {
	if active == nil {
		return Result{Events: []calendar.Event{}}, nil
	}

	return f.FetchRange(ctx, active, calendar.RangeFor(anchor, mode, f.weekStart))
}

// FetchRange is Fetch over an explicit window.
func (f *Fetcher) FetchRange(ctx context.Context, active *calendar.Calendar, rng calendar.Range) (Result, error) {
	if active == nil {
		return Result{Range: rng, Events: []calendar.Event{}}, nil
	}
	res := Result{Range: rng}

	var (
		recs []calendar.Record
		err  error
		op   = "list events"
	)
	switch {
	case active.IsAggregate() && active.UniversityID != nil && *active.UniversityID != "":
		res.Aggregate = true
		op = "list university events"
		recs, err = f.backend.ListEventsForUniversity(ctx, *active.UniversityID, rng.Start, rng.End)
	case active.IsAggregate():
		res.Degraded = true
		metrics.AggregateFallback()
		f.log.Warn().
			Str("calendar_id", active.ID).
			Str("calendar_name", active.Name).
			Msg("aggregate calendar has no university; reading it as a single calendar")
		fallthrough
	default:
		recs, err = f.backend.ListEvents(ctx, active.ID, rng.Start, rng.End)
	}
	if err != nil {
		return res, calendar.AsProviderError(op, err)
	}

	events, err := f.norm.Events(recs)
	if err != nil {
		return res, err
	}

	res.Events = make([]calendar.Event, 0, len(events))
	for _, ev := range events {
		if ev.Overlaps(rng) {
			res.Events = append(res.Events, ev)
		}
	}
	sort.SliceStable(res.Events, func(i, j int) bool {
		a, b := res.Events[i], res.Events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	return res, nil
}
