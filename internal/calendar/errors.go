package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired indicates there is no valid session.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthorizationDenied is returned when a role lacks the capability for an operation.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrMalformedRecord matches every *MalformedRecordError.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnknownRole indicates a role tag outside the closed role set.
	ErrUnknownRole = errors.New("unknown role")
	// ErrStaleResponse marks a fetch result superseded by a newer state change.
	ErrStaleResponse = errors.New("stale response")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidDraft indicates an event draft that cannot be sent to the backend.
	ErrInvalidDraft = errors.New("invalid event draft")
)

// MalformedRecordError reports a backend record missing a required field or
// carrying a value that cannot be interpreted.
type MalformedRecordError struct {
	Kind  string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s record: field %q: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed %s record: missing %q", e.Kind, e.Field)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// ProviderError wraps any failure reported by the backend provider.
type ProviderError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: provider error", e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError wraps err as a ProviderError unless it already belongs to the
// error taxonomy, in which case it is returned unchanged.
func AsProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, ErrAuthenticationRequired),
		errors.Is(err, ErrAuthorizationDenied),
		errors.Is(err, ErrMalformedRecord),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidDraft):
		return err
	}
	return &ProviderError{Op: op, Message: err.Error(), Err: err}
}
