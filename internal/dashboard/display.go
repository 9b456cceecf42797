package dashboard

import "github.com/jw6ventures/campuscal/internal/calendar"

const (
	defaultTypeColor = "#6B7280"

	mutedBackground = "#F3F4F6"
	mutedBorder     = "#D1D5DB"
	mutedText       = "#6B7280"
	normalText      = "#111827"

	// Appended to a #RRGGBB colour for the event background.
	backgroundAlpha = "20"
)

// Display is the colouring handed to the rendering surface for one event.
type Display struct {
	Background   string `json:"background"`
	Border       string `json:"border"`
	Text         string `json:"text"`
	Deemphasized bool   `json:"deemphasized"`
}

// DisplayFor colours ev. With a non-empty highlight set, events whose type is
// not highlighted are muted.
func DisplayFor(ev calendar.Event, types map[string]calendar.EventType, highlighted map[string]bool) Display {
	if len(highlighted) > 0 && (ev.EventTypeID == nil || !highlighted[*ev.EventTypeID]) {
		return Display{Background: mutedBackground, Border: mutedBorder, Text: mutedText, Deemphasized: true}
	}

	color := defaultTypeColor
	if t, ok := lookupType(types, ev.EventTypeID); ok && t.Color != "" {
		color = t.Color
	} else if ev.Source != nil && ev.Source.EventTypeColor != "" {
		color = ev.Source.EventTypeColor
	}

	bg := color
	if len(color) == 7 && color[0] == '#' {
		bg = color + backgroundAlpha
	}
	return Display{Background: bg, Border: color, Text: normalText}
}

func lookupType(types map[string]calendar.EventType, id *string) (calendar.EventType, bool) {
	if id == nil {
		return calendar.EventType{}, false
	}
	t, ok := types[*id]
	return t, ok
}
