package ui

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	"github.com/jw6ventures/campuscal/internal/http/errors"
)

// Dashboard returns the current snapshot, loading the view on first use.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

type selectCalendarRequest struct {
	CalendarID string `json:"calendarId"`
}

func (h *Handler) SelectCalendar(w http.ResponseWriter, r *http.Request) {
	var req selectCalendarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if req.CalendarID == "" {
		errors.WriteError(w, r, fmt.Errorf("%w: calendarId is required", calendar.ErrInvalidDraft))
		return
	}
	h.withView(w, r, func(v *dashboard.View) error {
		return v.SelectCalendar(r.Context(), req.CalendarID)
	})
}

type navigateRequest struct {
	Date *string `json:"date,omitempty"`
	View *string `json:"view,omitempty"`
}

// Navigate moves the anchor date and/or switches the view mode.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}

	var anchor *time.Time
	if req.Date != nil {
		t, err := parseDate(*req.Date, h.loc)
		if err != nil {
			errors.WriteError(w, r, err)
			return
		}
		anchor = &t
	}
	var mode *calendar.ViewMode
	if req.View != nil {
		m, err := calendar.ParseViewMode(*req.View)
		if err != nil {
			errors.WriteError(w, r, fmt.Errorf("%w: %v", calendar.ErrInvalidDraft, err))
			return
		}
		mode = &m
	}

	h.withView(w, r, func(v *dashboard.View) error {
		return v.Navigate(r.Context(), anchor, mode)
	})
}

type highlightRequest struct {
	EventTypeIDs []string `json:"eventTypeIds"`
}

// Highlight replaces the highlighted event types. An empty list clears it.
func (h *Handler) Highlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.withView(w, r, func(v *dashboard.View) error {
		v.SetHighlighted(req.EventTypeIDs)
		return nil
	})
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (h *Handler) Category(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.withView(w, r, func(v *dashboard.View) error {
		return v.SetCategory(req.Category)
	})
}

// Refresh reloads calendars and event types and refetches the window.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *dashboard.View) error {
		return v.Refresh(r.Context())
	})
}

// withView runs fn against the session's view and answers with the resulting
// snapshot.
func (h *Handler) withView(w http.ResponseWriter, r *http.Request, fn func(*dashboard.View) error) {
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if err := fn(v); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}
