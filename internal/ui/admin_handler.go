package ui

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/http/errors"
	"github.com/jw6ventures/campuscal/internal/store"
)

type universityRequest struct {
	Name string `json:"name"`
}

type university struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toUniversity(rec calendar.Record) university {
	name, _ := rec["name"].(string)
	return university{ID: rec.ID(), Name: name}
}

// ListUniversities lists every university by name.
func (h *Handler) ListUniversities(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.Universities.List(r.Context())
	if err != nil {
		h.storeError(w, r, "list universities", err)
		return
	}
	out := make([]university, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toUniversity(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"universities": out})
}

// CreateUniversity creates a university together with its default academic
// and events calendars. Repeating a name returns the existing university.
func (h *Handler) CreateUniversity(w http.ResponseWriter, r *http.Request) {
	var req universityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		errors.WriteError(w, r, fmt.Errorf("%w: name is required", calendar.ErrInvalidDraft))
		return
	}
	status := http.StatusCreated
	if _, err := h.store.Universities.GetByName(r.Context(), name); err == nil {
		status = http.StatusOK
	} else if !stderrors.Is(err, store.ErrNotFound) {
		h.storeError(w, r, "lookup university", err)
		return
	}
	rec, err := h.creator.CreateUniversity(r.Context(), name)
	if err != nil {
		h.storeError(w, r, "create university", err)
		return
	}
	if status == http.StatusCreated {
		errors.LogInfo(r, "university created: "+name)
	}
	writeJSON(w, status, toUniversity(rec))
}

type profileRequest struct {
	Email        string  `json:"email"`
	DisplayName  *string `json:"displayName,omitempty"`
	Role         string  `json:"role"`
	UniversityID *string `json:"universityId,omitempty"`
}

// input validates the request and applies the defaults for new or edited
// profiles: lower-cased e-mail and a display name taken from its local part.
func (p profileRequest) input() (store.ProfileInput, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return store.ProfileInput{}, fmt.Errorf("%w: a valid email is required", calendar.ErrInvalidDraft)
	}
	role, err := calendar.ParseRole(strings.TrimSpace(p.Role))
	if err != nil {
		return store.ProfileInput{}, fmt.Errorf("%w: %v", calendar.ErrInvalidDraft, err)
	}

	display := email[:at]
	if p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) != "" {
		display = strings.TrimSpace(*p.DisplayName)
	}
	var uni *string
	if p.UniversityID != nil && strings.TrimSpace(*p.UniversityID) != "" {
		id := strings.TrimSpace(*p.UniversityID)
		uni = &id
	}
	return store.ProfileInput{Email: email, DisplayName: &display, Role: role, UniversityID: uni}, nil
}

// ListProfiles lists profiles, paginated with page and limit.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.Profiles.List(r.Context())
	if err != nil {
		h.storeError(w, r, "list profiles", err)
		return
	}
	users := make([]calendar.User, 0, len(recs))
	for _, rec := range recs {
		u, err := h.norm.User(rec)
		if err != nil {
			errors.LogError(r, "skipping malformed profile", err)
			continue
		}
		users = append(users, u)
	}

	page, limit := h.parsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": paginate(users, page, limit),
		"page":     page,
		"limit":    limit,
		"total":    len(users),
	})
}

func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	rec, err := h.store.Profiles.Create(r.Context(), in)
	if err != nil {
		h.storeError(w, r, "create profile", err)
		return
	}
	u, err := h.norm.User(rec)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// UpdateProfile replaces a profile and pushes the change to the user's open
// dashboards.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	rec, err := h.store.Profiles.Update(r.Context(), id, in)
	if err != nil {
		h.storeError(w, r, "update profile", err)
		return
	}
	u, err := h.norm.User(rec)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.publisher.PublishProfile(u.ID, &u)
	writeJSON(w, http.StatusOK, u)
}

// DeleteProfile removes a profile and signs it out of open dashboards.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Profiles.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, "delete profile", err)
		return
	}
	h.publisher.PublishProfile(id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// storeError maps repository errors for the admin endpoints, which talk to
// the store directly.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case stderrors.Is(err, store.ErrConflict):
		errors.LogInfo(r, op+": conflict")
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already exists"})
	case stderrors.Is(err, store.ErrNotFound):
		errors.WriteError(w, r, fmt.Errorf("%s: %w", op, calendar.ErrNotFound))
	case stderrors.Is(err, store.ErrInvalidInput):
		errors.WriteError(w, r, fmt.Errorf("%w: %s rejected", calendar.ErrInvalidDraft, op))
	default:
		errors.WriteError(w, r, calendar.AsProviderError(op, err))
	}
}
