package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jw6ventures/campuscal/internal/migrations"
)

// PgxPool represents the subset of pgxpool.Pool used by migration helpers.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// baselineTable marks a schema created before version tracking existed.
const baselineTable = "public.universities"

const (
	sqlTrackingExists = `SELECT to_regclass('public.schema_migrations') IS NOT NULL`
	sqlBaselineExists = `SELECT to_regclass($1) IS NOT NULL`
	sqlCreateTracking = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	sqlVersionApplied = `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`
	sqlRecordVersion  = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
)

// ApplyMigrations runs every embedded migration not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions
// it applied. A database that already holds the campuscal tables but has no
// tracking table is treated as being at the first version.
func ApplyMigrations(ctx context.Context, pool PgxPool) ([]string, error) {
	versions, err := migrationVersions(migrations.Files)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	if err := ensureTracking(ctx, pool, versions[0]); err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range versions {
		var done bool
		if err := pool.QueryRow(ctx, sqlVersionApplied, version).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", version, err)
		}
		if done {
			continue
		}
		if err := runMigration(ctx, pool, version); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// migrationVersions lists the .sql files of fsys in lexical order.
func migrationVersions(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() && path.Ext(entry.Name()) == ".sql" {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// ensureTracking creates schema_migrations on first start. When the
// campuscal schema is already there, baseline is recorded so its statements
// are not replayed.
func ensureTracking(ctx context.Context, pool PgxPool, baseline string) error {
	var tracked bool
	if err := pool.QueryRow(ctx, sqlTrackingExists).Scan(&tracked); err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}
	if tracked {
		return nil
	}

	var existing bool
	if err := pool.QueryRow(ctx, sqlBaselineExists, baselineTable).Scan(&existing); err != nil {
		return fmt.Errorf("check existing schema: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTracking); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	if existing {
		if _, err := pool.Exec(ctx, sqlRecordVersion, baseline); err != nil {
			return fmt.Errorf("record baseline %s: %w", baseline, err)
		}
	}
	return nil
}

func runMigration(ctx context.Context, pool PgxPool, version string) (err error) {
	defer observeDB(ctx, "migrations.apply")()

	contents, err := migrations.Files.ReadFile(version)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	if _, err = tx.Exec(ctx, sqlRecordVersion, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
