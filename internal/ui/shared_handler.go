package ui

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/campuscal/internal/feed"
	"github.com/jw6ventures/campuscal/internal/http/errors"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SharedFeed returns the events behind a share link as JSON.
func (h *Handler) SharedFeed(w http.ResponseWriter, r *http.Request) {
	f, err := h.feeds.Load(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, f)
}

// SharedICS renders the events behind a share link as an iCalendar file.
func (h *Handler) SharedICS(w http.ResponseWriter, r *http.Request) {
	f, err := h.feeds.Load(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := feed.WriteICS(&buf, f, h.now()); err != nil {
		errors.InternalError(w, r, err, "render share feed")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", icsFilename(f.Calendar.Name)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func icsFilename(name string) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(name, "-"), "-")
	if base == "" {
		base = "calendar"
	}
	return base + ".ics"
}

// RevokeShare invalidates a share link ahead of its expiry.
func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	if err := h.shares.RevokeShare(r.Context(), chi.URLParam(r, "token")); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	errors.LogInfo(r, "share link revoked")
	w.WriteHeader(http.StatusNoContent)
}
