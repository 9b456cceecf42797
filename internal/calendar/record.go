package calendar

// The Canonical*Record helpers render entities back into records using the
// primary key of every fallback chain, so that normalizing them again yields
// the same entity.

func CanonicalUserRecord(u User) Record {
	rec := Record{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"role":        string(u.Role),
	}
	putString(rec, "universityId", u.UniversityID)
	putString(rec, "universityName", u.UniversityName)
	return rec
}

func CanonicalCalendarRecord(c Calendar) Record {
	rec := Record{
		"id":       c.ID,
		"name":     c.Name,
		"category": string(c.Category),
		"isPublic": c.IsPublic,
	}
	putString(rec, "description", c.Description)
	putString(rec, "ownerId", c.OwnerID)
	putString(rec, "universityId", c.UniversityID)
	putString(rec, "universityName", c.UniversityName)
	return rec
}

func CanonicalEventTypeRecord(t EventType) Record {
	rec := Record{
		"id":    t.ID,
		"name":  t.Name,
		"color": t.Color,
	}
	if t.Category != nil {
		rec["category"] = string(*t.Category)
	}
	return rec
}

func CanonicalEventRecord(e Event) Record {
	rec := Record{
		"id":         e.ID,
		"title":      e.Title,
		"start":      e.Start,
		"end":        e.End,
		"calendarId": e.CalendarID,
		"allDay":     e.AllDay,
	}
	putString(rec, "description", e.Description)
	putString(rec, "eventTypeId", e.EventTypeID)
	putString(rec, "location", e.Location)
	if e.Imputed {
		rec["imputed"] = true
	}
	if e.Source != nil {
		src := Record{}
		if e.Source.CalendarName != "" {
			src["calendarName"] = e.Source.CalendarName
		}
		if e.Source.CalendarCategory != "" {
			src["calendarCategory"] = string(e.Source.CalendarCategory)
		}
		if e.Source.EventTypeName != "" {
			src["eventTypeName"] = e.Source.EventTypeName
		}
		if e.Source.EventTypeColor != "" {
			src["eventTypeColor"] = e.Source.EventTypeColor
		}
		rec["source"] = src
	}
	return rec
}

func putString(rec Record, key string, v *string) {
	if v != nil {
		rec[key] = *v
	}
}
