package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// validID rejects ids that cannot name a row, so a typo in a URL reads as a
// missing record instead of a driver error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func collectRecords(rows pgx.Rows, err error) ([]calendar.Record, error) {
	if err != nil {
		return nil, mapPgError(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapPgError(err)
	}
	out := make([]calendar.Record, len(maps))
	for i, m := range maps {
		out[i] = calendar.Record(m)
	}
	return out, nil
}

func collectRecord(rows pgx.Rows, err error) (calendar.Record, error) {
	if err != nil {
		return nil, mapPgError(err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapPgError(err)
	}
	return calendar.Record(m), nil
}

func nullable(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}

func nullableID(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

type universityRepo struct {
	pool dbPool
}

func (r *universityRepo) List(ctx context.Context) ([]calendar.Record, error) {
	defer observeDB(ctx, "universities.list")()
	rows, err := r.pool.Query(ctx, `SELECT id::text AS id, name FROM universities ORDER BY name`)
	return collectRecords(rows, err)
}

func (r *universityRepo) GetByName(ctx context.Context, name string) (calendar.Record, error) {
	defer observeDB(ctx, "universities.get_by_name")()
	rows, err := r.pool.Query(ctx, `SELECT id::text AS id, name FROM universities WHERE name=$1`, name)
	return collectRecord(rows, err)
}

const profileSelect = `SELECT p.id, p.email, p.display_name, p.role, p.university_id, u.name AS university_name
FROM profiles p LEFT JOIN universities u ON u.id = p.university_id`

type profileRepo struct {
	pool dbPool
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (calendar.Record, error) {
	defer observeDB(ctx, "profiles.get_by_id")()
	if !validID(id) {
		return nil, ErrNotFound
	}
	rows, err := r.pool.Query(ctx, profileSelect+` WHERE p.id=$1`, id)
	return collectRecord(rows, err)
}

func (r *profileRepo) GetByEmail(ctx context.Context, email string) (calendar.Record, error) {
	defer observeDB(ctx, "profiles.get_by_email")()
	rows, err := r.pool.Query(ctx, profileSelect+` WHERE LOWER(p.email)=LOWER($1)`, strings.TrimSpace(email))
	return collectRecord(rows, err)
}

func (r *profileRepo) List(ctx context.Context) ([]calendar.Record, error) {
	defer observeDB(ctx, "profiles.list")()
	rows, err := r.pool.Query(ctx, profileSelect+` ORDER BY p.email`)
	return collectRecords(rows, err)
}

func validateProfile(in ProfileInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if in.UniversityID != nil && *in.UniversityID != "" && !validID(*in.UniversityID) {
		return fmt.Errorf("%w: invalid university id", ErrInvalidInput)
	}
	return nil
}

func (r *profileRepo) Create(ctx context.Context, in ProfileInput) (calendar.Record, error) {
	defer observeDB(ctx, "profiles.create")()
	if err := validateProfile(in); err != nil {
		return nil, err
	}
	const q = `WITH p AS (
    INSERT INTO profiles (email, display_name, role, university_id)
    VALUES (LOWER($1), $2, $3, $4)
    RETURNING *
)
SELECT p.id, p.email, p.display_name, p.role, p.university_id, u.name AS university_name
FROM p LEFT JOIN universities u ON u.id = p.university_id`
	rows, err := r.pool.Query(ctx, q, strings.TrimSpace(in.Email), nullable(in.DisplayName), string(in.Role), nullableID(in.UniversityID))
	return collectRecord(rows, err)
}

func (r *profileRepo) CreateIfMissing(ctx context.Context, in ProfileInput) (bool, error) {
	defer observeDB(ctx, "profiles.create_if_missing")()
	if err := validateProfile(in); err != nil {
		return false, err
	}
	const q = `INSERT INTO profiles (email, display_name, role, university_id)
VALUES (LOWER($1), $2, $3, $4)
ON CONFLICT (email) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, strings.TrimSpace(in.Email), nullable(in.DisplayName), string(in.Role), nullableID(in.UniversityID))
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *profileRepo) Update(ctx context.Context, id string, in ProfileInput) (calendar.Record, error) {
	defer observeDB(ctx, "profiles.update")()
	if !validID(id) {
		return nil, ErrNotFound
	}
	if err := validateProfile(in); err != nil {
		return nil, err
	}
	const q = `WITH p AS (
    UPDATE profiles
    SET email=LOWER($2), display_name=$3, role=$4, university_id=$5, updated_at=NOW()
    WHERE id=$1
    RETURNING *
)
SELECT p.id, p.email, p.display_name, p.role, p.university_id, u.name AS university_name
FROM p LEFT JOIN universities u ON u.id = p.university_id`
	rows, err := r.pool.Query(ctx, q, id, strings.TrimSpace(in.Email), nullable(in.DisplayName), string(in.Role), nullableID(in.UniversityID))
	return collectRecord(rows, err)
}

func (r *profileRepo) Delete(ctx context.Context, id string) error {
	defer observeDB(ctx, "profiles.delete")()
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) RecordLogin(ctx context.Context, id, subject string) error {
	defer observeDB(ctx, "profiles.record_login")()
	if !validID(id) {
		return ErrNotFound
	}
	const q = `UPDATE profiles SET oidc_subject=COALESCE(NULLIF($2, ''), oidc_subject), last_login_at=NOW() WHERE id=$1`
	tag, err := r.pool.Exec(ctx, q, id, subject)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const calendarSelect = `SELECT c.id, c.name, c.description, c.owner_id, c.university_id, u.name AS university_name, c.category, c.is_public
FROM calendars c LEFT JOIN universities u ON u.id = c.university_id`

type calendarRepo struct {
	pool dbPool
}

func (r *calendarRepo) List(ctx context.Context) ([]calendar.Record, error) {
	defer observeDB(ctx, "calendars.list")()
	rows, err := r.pool.Query(ctx, calendarSelect+` ORDER BY u.name NULLS FIRST, c.name, c.id`)
	return collectRecords(rows, err)
}

func (r *calendarRepo) GetByID(ctx context.Context, id string) (calendar.Record, error) {
	defer observeDB(ctx, "calendars.get_by_id")()
	if !validID(id) {
		return nil, ErrNotFound
	}
	rows, err := r.pool.Query(ctx, calendarSelect+` WHERE c.id=$1`, id)
	return collectRecord(rows, err)
}

func (r *calendarRepo) CreateIfMissing(ctx context.Context, in CalendarInput) (bool, error) {
	defer observeDB(ctx, "calendars.create_if_missing")()
	if strings.TrimSpace(in.Name) == "" {
		return false, fmt.Errorf("%w: calendar name is required", ErrInvalidInput)
	}
	category := in.Category
	if category == "" {
		category = calendar.CategoryEvent
	}
	const q = `INSERT INTO calendars (name, description, university_id, owner_id, category, is_public)
SELECT $1, $2, $3, $4, $5, $6
WHERE NOT EXISTS (
    SELECT 1 FROM calendars WHERE name=$1 AND university_id IS NOT DISTINCT FROM $3::uuid
)`
	tag, err := r.pool.Exec(ctx, q, in.Name, nullable(in.Description), nullableID(in.UniversityID), nullableID(in.OwnerID), string(category), in.IsPublic)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

const eventTypeColumns = `id, name, color, category`

type eventTypeRepo struct {
	pool dbPool
}

func (r *eventTypeRepo) List(ctx context.Context) ([]calendar.Record, error) {
	defer observeDB(ctx, "event_types.list")()
	rows, err := r.pool.Query(ctx, `SELECT `+eventTypeColumns+` FROM event_types ORDER BY created_at, name`)
	return collectRecords(rows, err)
}

func (r *eventTypeRepo) Upsert(ctx context.Context, in EventTypeInput) (calendar.Record, error) {
	defer observeDB(ctx, "event_types.upsert")()
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: event type name is required", ErrInvalidInput)
	}
	var category any
	if in.Category != nil {
		category = string(*in.Category)
	}
	color := in.Color
	if color == "" {
		color = "#6B7280"
	}
	const q = `INSERT INTO event_types (name, color, category) VALUES ($1, $2, $3)
ON CONFLICT ((LOWER(name))) DO UPDATE SET color=EXCLUDED.color, category=EXCLUDED.category
RETURNING ` + eventTypeColumns
	rows, err := r.pool.Query(ctx, q, strings.TrimSpace(in.Name), color, category)
	return collectRecord(rows, err)
}

const eventColumns = `id, title, description, start_time, end_time, calendar_id, event_type_id, all_day, location`

type eventRepo struct {
	pool dbPool
}

// ListForCalendar returns events of one calendar overlapping [start, end].
func (r *eventRepo) ListForCalendar(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Record, error) {
	defer observeDB(ctx, "events.list_for_calendar")()
	if !validID(calendarID) {
		return nil, ErrNotFound
	}
	const q = `SELECT ` + eventColumns + ` FROM events
WHERE calendar_id=$1 AND start_time <= $3 AND end_time >= $2
ORDER BY start_time, id`
	rows, err := r.pool.Query(ctx, q, calendarID, start, end)
	return collectRecords(rows, err)
}

// ListForUniversity returns events of every calendar of a university with
// the calendar and event type joined in.
func (r *eventRepo) ListForUniversity(ctx context.Context, universityID string, start, end time.Time) ([]calendar.Record, error) {
	defer observeDB(ctx, "events.list_for_university")()
	if !validID(universityID) {
		return nil, ErrNotFound
	}
	const q = `SELECT e.id, e.title, e.description, e.start_time, e.end_time, e.calendar_id, e.event_type_id, e.all_day, e.location,
       c.name AS calendar_name, c.category AS calendar_category,
       et.name AS event_type_name, et.color AS event_type_color
FROM events e
JOIN calendars c ON c.id = e.calendar_id
LEFT JOIN event_types et ON et.id = e.event_type_id
WHERE c.university_id=$1 AND e.start_time <= $3 AND e.end_time >= $2
ORDER BY e.start_time, e.id`
	rows, err := r.pool.Query(ctx, q, universityID, start, end)
	return collectRecords(rows, err)
}

func (r *eventRepo) Create(ctx context.Context, d calendar.Draft) (calendar.Record, error) {
	defer observeDB(ctx, "events.create")()
	if !validID(d.CalendarID) {
		return nil, ErrNotFound
	}
	if d.EventTypeID != nil && *d.EventTypeID != "" && !validID(*d.EventTypeID) {
		return nil, fmt.Errorf("%w: invalid event type id", ErrInvalidInput)
	}
	const q = `INSERT INTO events (title, description, start_time, end_time, calendar_id, event_type_id, all_day, location)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + eventColumns
	rows, err := r.pool.Query(ctx, q, d.Title, nullable(d.Description), d.Start, d.End, d.CalendarID, nullableID(d.EventTypeID), d.AllDay, nullable(d.Location))
	return collectRecord(rows, err)
}

func (r *eventRepo) Update(ctx context.Context, id string, p calendar.Patch) (calendar.Record, error) {
	defer observeDB(ctx, "events.update")()
	if !validID(id) {
		return nil, ErrNotFound
	}
	if p.EventTypeID != nil && *p.EventTypeID != "" && !validID(*p.EventTypeID) {
		return nil, fmt.Errorf("%w: invalid event type id", ErrInvalidInput)
	}
	q, args := buildEventUpdate(id, p)
	rows, err := r.pool.Query(ctx, q, args...)
	return collectRecord(rows, err)
}

// buildEventUpdate renders a sparse UPDATE touching only the fields set on p.
// Empty description, location or event type clear the column.
func buildEventUpdate(id string, p calendar.Patch) (string, []any) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", nullable(p.Description))
	}
	if p.Start != nil {
		set("start_time", *p.Start)
	}
	if p.End != nil {
		set("end_time", *p.End)
	}
	if p.EventTypeID != nil {
		set("event_type_id", nullableID(p.EventTypeID))
	}
	if p.AllDay != nil {
		set("all_day", *p.AllDay)
	}
	if p.Location != nil {
		set("location", nullable(p.Location))
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, id)
	q := fmt.Sprintf("UPDATE events SET %s WHERE id=$%d RETURNING %s", strings.Join(sets, ", "), len(args), eventColumns)
	return q, args
}

func (r *eventRepo) Delete(ctx context.Context, id string) error {
	defer observeDB(ctx, "events.delete")()
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type shareTokenRepo struct {
	pool dbPool
}

func (r *shareTokenRepo) Create(ctx context.Context, t ShareToken) error {
	defer observeDB(ctx, "share_tokens.create")()
	if !validID(t.ID) || !validID(t.CalendarID) {
		return fmt.Errorf("%w: invalid share token ids", ErrInvalidInput)
	}
	const q = `INSERT INTO share_tokens (id, calendar_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, q, t.ID, t.CalendarID, t.ExpiresAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

// GetActive returns the token if it is neither revoked nor expired at now.
func (r *shareTokenRepo) GetActive(ctx context.Context, id string, now time.Time) (*ShareToken, error) {
	defer observeDB(ctx, "share_tokens.get_active")()
	if !validID(id) {
		return nil, ErrNotFound
	}
	const q = `SELECT id::text, calendar_id::text, expires_at, revoked_at, created_at
FROM share_tokens
WHERE id=$1 AND revoked_at IS NULL AND expires_at > $2`
	var t ShareToken
	err := r.pool.QueryRow(ctx, q, id, now).Scan(&t.ID, &t.CalendarID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return &t, nil
}

func (r *shareTokenRepo) Revoke(ctx context.Context, id string) error {
	defer observeDB(ctx, "share_tokens.revoke")()
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE share_tokens SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired deletes expired and revoked tokens and reports how many went.
func (r *shareTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observeDB(ctx, "share_tokens.purge")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM share_tokens WHERE expires_at <= $1 OR revoked_at IS NOT NULL`, now)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}
