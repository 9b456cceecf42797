package access

import "github.com/jw6ventures/campuscal/internal/calendar"

// Visibility is the calendar subset a user may see plus the calendar the
// dashboard should show when nothing else is selected.
type Visibility struct {
	Visible       []calendar.Calendar `json:"visible"`
	DefaultActive *calendar.Calendar  `json:"defaultActive"`
}

// ComputeVisible filters all for u, preserving order. current is the calendar
// selected before this computation; it is kept only while it remains visible,
// and the returned pointer always refers to an element of Visible.
func ComputeVisible(u *calendar.User, all []calendar.Calendar, current *calendar.Calendar) Visibility {
	if u == nil {
		return Visibility{Visible: []calendar.Calendar{}}
	}

	visible := make([]calendar.Calendar, 0, len(all))
	for _, cal := range all {
		if canSee(u, cal) {
			visible = append(visible, cal)
		}
	}

	v := Visibility{Visible: visible}
	kept := find(visible, current)

	switch u.Role {
	case calendar.RoleOrgAdmin:
		if kept != nil {
			v.DefaultActive = kept
		} else if len(visible) > 0 {
			v.DefaultActive = &visible[0]
		}
	case calendar.RoleTeacher, calendar.RolePM, calendar.RoleCOS, calendar.RoleProgramOps:
		switch {
		case kept != nil:
			v.DefaultActive = kept
		case firstAcademic(visible) != nil:
			v.DefaultActive = firstAcademic(visible)
		case len(visible) > 0:
			v.DefaultActive = &visible[0]
		}
	default:
		// Read-only roles never get an implicit pick.
		v.DefaultActive = kept
	}
	return v
}

func canSee(u *calendar.User, cal calendar.Calendar) bool {
	if u.Role == calendar.RoleOrgAdmin {
		return true
	}
	if u.UniversityID != nil {
		return cal.UniversityID != nil && *cal.UniversityID == *u.UniversityID
	}
	return cal.IsPublic || cal.Category == calendar.CategoryAdmin
}

func find(visible []calendar.Calendar, current *calendar.Calendar) *calendar.Calendar {
	if current == nil {
		return nil
	}
	for i := range visible {
		if visible[i].ID == current.ID {
			return &visible[i]
		}
	}
	return nil
}

func firstAcademic(visible []calendar.Calendar) *calendar.Calendar {
	for i := range visible {
		if visible[i].Category == calendar.CategoryAcademic {
			return &visible[i]
		}
	}
	return nil
}

// FilterByCategory narrows calendars to one category; "all" or empty keeps everything.
func FilterByCategory(cals []calendar.Calendar, category string) []calendar.Calendar {
	if category == "" || category == "all" {
		return cals
	}
	out := make([]calendar.Calendar, 0, len(cals))
	for _, c := range cals {
		if string(c.Category) == category {
			out = append(out, c)
		}
	}
	return out
}

// FilterEventTypesByCategory narrows event types the same way; uncategorised types count as event.
func FilterEventTypesByCategory(types []calendar.EventType, category string) []calendar.EventType {
	if category == "" || category == "all" {
		return types
	}
	out := make([]calendar.EventType, 0, len(types))
	for _, t := range types {
		if string(t.EffectiveCategory()) == category {
			out = append(out, t)
		}
	}
	return out
}
