package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a missing record or an id that cannot exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidInput indicates a value the schema rejected.
	ErrInvalidInput = errors.New("invalid input")
)

// mapPgError folds driver errors onto the store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503", "23514", "22P02", "22007", "22008":
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}
