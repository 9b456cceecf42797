package ui

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	"github.com/jw6ventures/campuscal/internal/http/errors"
)

type eventResponse struct {
	Event     calendar.Event     `json:"event"`
	Dashboard dashboard.Snapshot `json:"dashboard"`
}

// CreateEvent adds an event to a calendar visible to the caller.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var draft calendar.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	ev, err := v.CreateEvent(r.Context(), draft)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{Event: ev, Dashboard: v.Snapshot()})
}

// UpdateEvent applies a sparse patch.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch calendar.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.mutateEvent(w, r, func(v *dashboard.View, id string) (calendar.Event, error) {
		return v.UpdateEvent(r.Context(), id, patch)
	})
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r rescheduleRequest) validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", calendar.ErrInvalidDraft)
	}
	return nil
}

// MoveEvent applies a drag-and-drop result.
func (h *Handler) MoveEvent(w http.ResponseWriter, r *http.Request) {
	h.reschedule(w, r, (*dashboard.View).MoveEvent)
}

// ResizeEvent applies a resize gesture result.
func (h *Handler) ResizeEvent(w http.ResponseWriter, r *http.Request) {
	h.reschedule(w, r, (*dashboard.View).ResizeEvent)
}

type rescheduleMethod func(v *dashboard.View, ctx context.Context, id string, start, end time.Time) (calendar.Event, error)

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request, fn rescheduleMethod) {
	var req rescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.mutateEvent(w, r, func(v *dashboard.View, id string) (calendar.Event, error) {
		return fn(v, r.Context(), id, req.Start, req.End)
	})
}

// DeleteEvent removes a loaded event and returns the refreshed snapshot.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if err := v.DeleteEvent(r.Context(), id); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (h *Handler) mutateEvent(w http.ResponseWriter, r *http.Request, fn func(*dashboard.View, string) (calendar.Event, error)) {
	id := chi.URLParam(r, "id")
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	ev, err := fn(v, id)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: ev, Dashboard: v.Snapshot()})
}

// ShareCalendar mints a read-only link for a visible calendar.
func (h *Handler) ShareCalendar(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	link, err := v.CreateShareLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": link, "icsUrl": link + "/calendar.ics"})
}
