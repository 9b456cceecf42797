package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/http/errors"
)

const (
	defaultPageSize = 50
	maxBodyBytes    = 1 << 20
)

// parsePagination extracts page and limit from query parameters.
func (h *Handler) parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageSize

	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return
}

// paginate returns the slice of items for page.
func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// decodeJSON reads a JSON body into dst. Unknown fields and trailing data are
// rejected as invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: request body is required", calendar.ErrInvalidDraft)
		}
		return fmt.Errorf("%w: invalid request body: %v", calendar.ErrInvalidDraft, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after request body", calendar.ErrInvalidDraft)
	}
	return nil
}

// parseDate accepts a plain date, interpreted in loc, or an RFC 3339 instant.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", calendar.ErrInvalidDraft, s)
	}
	return t.In(loc), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	errors.WriteJSON(w, status, v)
}
