package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

type body struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func logger(r *http.Request) *zerolog.Logger {
	l := zerolog.Ctx(r.Context())
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		scoped := l.With().Str("request_id", requestID).Logger()
		return &scoped
	}
	return l
}

// Status maps an error of the calendar taxonomy onto its HTTP status.
func Status(err error) int {
	var pe *calendar.ProviderError
	switch {
	case stderrors.Is(err, calendar.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case stderrors.Is(err, calendar.ErrAuthorizationDenied):
		return http.StatusForbidden
	case stderrors.Is(err, calendar.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, calendar.ErrInvalidDraft):
		return http.StatusBadRequest
	case stderrors.Is(err, calendar.ErrMalformedRecord):
		return http.StatusInternalServerError
	case stderrors.As(err, &pe):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// clientMessage is what the caller may see. Malformed records and unknown
// failures stay generic.
func clientMessage(err error, status int) string {
	var pe *calendar.ProviderError
	switch status {
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "you do not have permission to perform this action"
	case http.StatusNotFound:
		return "not found"
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusBadGateway:
		if stderrors.As(err, &pe) && pe.Message != "" {
			return pe.Message
		}
		return "calendar backend unavailable"
	}
	return "internal server error"
}

// WriteError writes err as a JSON error body with the status from Status.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	event := logger(r).Warn()
	if status >= http.StatusInternalServerError {
		event = logger(r).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")

	WriteJSON(w, status, body{Error: clientMessage(err, status), RequestID: middleware.GetReqID(r.Context())})
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logger(r).Error().Err(err).Msg(message)
	WriteJSON(w, http.StatusInternalServerError, body{Error: "internal server error", RequestID: middleware.GetReqID(r.Context())})
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logger(r).Warn().Err(err).Msg("bad request")
	WriteJSON(w, http.StatusBadRequest, body{Error: clientMessage, RequestID: middleware.GetReqID(r.Context())})
}

func ForbiddenError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logger(r).Warn().Err(err).Msg("forbidden")
	WriteJSON(w, http.StatusForbidden, body{Error: clientMessage, RequestID: middleware.GetReqID(r.Context())})
}

func LogError(r *http.Request, message string, err error) {
	logger(r).Error().Err(err).Msg(message)
}

func LogInfo(r *http.Request, message string) {
	logger(r).Info().Msg(message)
}
