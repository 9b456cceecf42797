package calendar

import "time"

// Range is a fetch window. Both bounds are inclusive; End is the last
// nanosecond of the window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// agendaLookahead is how far past the end of the month the agenda view reaches.
const agendaLookahead = 30

// RangeFor derives the fetch window for a view anchored at anchor, in the
// anchor's location. Unknown views fall back to month.
func RangeFor(anchor time.Time, view ViewMode, weekStart time.Weekday) Range {
	loc := anchor.Location()
	y, m, d := anchor.Date()

	switch view {
	case ViewYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return Range{Start: start, End: lastInstant(start.AddDate(1, 0, 0))}
	case ViewAgenda:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		monthEnd := lastInstant(start.AddDate(0, 1, 0))
		return Range{Start: start, End: monthEnd.AddDate(0, 0, agendaLookahead)}
	case ViewWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
		start := day.AddDate(0, 0, -offset)
		return Range{Start: start, End: lastInstant(start.AddDate(0, 0, 7))}
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Range{Start: start, End: lastInstant(start.AddDate(0, 1, 0))}
	}
}

func lastInstant(next time.Time) time.Time {
	return next.Add(-time.Nanosecond)
}
