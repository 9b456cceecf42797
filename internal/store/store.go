package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// dbPool is the subset of pgxpool.Pool the repositories use.
type dbPool interface {
	PgxPool
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool dbPool

	Universities UniversityRepository
	Profiles     ProfileRepository
	Calendars    CalendarRepository
	EventTypes   EventTypeRepository
	Events       EventRepository
	ShareTokens  ShareTokenRepository
}

// New wires concrete repository implementations with shared connection pool.
func New(pool dbPool) *Store {
	return &Store{
		pool:         pool,
		Universities: &universityRepo{pool: pool},
		Profiles:     &profileRepo{pool: pool},
		Calendars:    &calendarRepo{pool: pool},
		EventTypes:   &eventTypeRepo{pool: pool},
		Events:       &eventRepo{pool: pool},
		ShareTokens:  &shareTokenRepo{pool: pool},
	}
}

// Migrate applies pending schema migrations and returns their versions.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	return ApplyMigrations(ctx, s.pool)
}

// BeginTx starts a transaction with default options.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	defer observeDB(ctx, "db.begin_tx")()
	return s.pool.BeginTx(ctx, pgx.TxOptions{})
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

// CreateUniversity inserts a university, or finds the existing one with the
// same name, and makes sure its academic and events calendars exist. The
// advisory lock serializes concurrent creations of the same name.
func (s *Store) CreateUniversity(ctx context.Context, name string) (calendar.Record, error) {
	defer observeDB(ctx, "universities.create")()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: university name is required", ErrInvalidInput)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin university tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
		return nil, fmt.Errorf("lock university %q: %w", name, err)
	}

	var id string
	const upsert = `INSERT INTO universities (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text`
	if err := tx.QueryRow(ctx, upsert, name).Scan(&id); err != nil {
		return nil, fmt.Errorf("upsert university: %w", mapPgError(err))
	}

	if err := ensureDefaultCalendars(ctx, tx, id, name); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit university: %w", err)
	}
	committed = true
	return calendar.Record{"id": id, "name": name}, nil
}

func ensureDefaultCalendars(ctx context.Context, tx pgx.Tx, universityID, universityName string) error {
	for _, def := range defaultCalendars(universityName) {
		var exists bool
		const check = `SELECT EXISTS (SELECT 1 FROM calendars WHERE university_id=$1 AND name=$2)`
		if err := tx.QueryRow(ctx, check, universityID, def.name).Scan(&exists); err != nil {
			return fmt.Errorf("check calendar %q: %w", def.name, err)
		}
		if exists {
			continue
		}
		const insert = `INSERT INTO calendars (name, university_id, category) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insert, def.name, universityID, string(def.category)); err != nil {
			return fmt.Errorf("create calendar %q: %w", def.name, mapPgError(err))
		}
	}
	return nil
}
