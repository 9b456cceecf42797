package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	initSchema  = regexp.MustCompile("-- Initial schema for campuscal")
	shareSchema = regexp.MustCompile("-- Share tokens backing read-only calendar links")
	trackingQ   = regexp.MustCompile(`to_regclass\('public.schema_migrations'\)`)
	baselineQ   = regexp.MustCompile(`to_regclass\(\$1\)`)
	versionQ    = regexp.MustCompile(`schema_migrations WHERE version=\$1`)
	createQ     = regexp.MustCompile("CREATE TABLE IF NOT EXISTS schema_migrations")
	recordQ     = regexp.MustCompile("INSERT INTO schema_migrations")
)

func migrationTx(body *regexp.Regexp, version string) *mockTx {
	return &mockTx{execs: []execExpectation{
		{expect: body},
		{expect: recordQ, args: []any{version}},
	}}
}

func TestApplyMigrations(t *testing.T) {
	testCases := []struct {
		name    string
		queries []queryExpectation
		execs   []execExpectation
		txs     []*mockTx
		want    []string
	}{
		{
			name: "fresh database",
			queries: []queryExpectation{
				{expect: trackingQ, value: false},
				{expect: baselineQ, args: []any{baselineTable}, value: false},
				{expect: versionQ, args: []any{"001_init.sql"}, value: false},
				{expect: versionQ, args: []any{"002_share_tokens.sql"}, value: false},
			},
			execs: []execExpectation{{expect: createQ}},
			txs:   []*mockTx{migrationTx(initSchema, "001_init.sql"), migrationTx(shareSchema, "002_share_tokens.sql")},
			want:  []string{"001_init.sql", "002_share_tokens.sql"},
		},
		{
			name: "untracked campuscal schema keeps its tables",
			queries: []queryExpectation{
				{expect: trackingQ, value: false},
				{expect: baselineQ, args: []any{baselineTable}, value: true},
				{expect: versionQ, args: []any{"001_init.sql"}, value: true},
				{expect: versionQ, args: []any{"002_share_tokens.sql"}, value: false},
			},
			execs: []execExpectation{
				{expect: createQ},
				{expect: recordQ, args: []any{"001_init.sql"}},
			},
			txs:  []*mockTx{migrationTx(shareSchema, "002_share_tokens.sql")},
			want: []string{"002_share_tokens.sql"},
		},
		{
			name: "up to date",
			queries: []queryExpectation{
				{expect: trackingQ, value: true},
				{expect: versionQ, args: []any{"001_init.sql"}, value: true},
				{expect: versionQ, args: []any{"002_share_tokens.sql"}, value: true},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := &mockPool{t: t, queries: tc.queries, execs: tc.execs, txs: tc.txs}

			applied, err := ApplyMigrations(context.Background(), pool)
			if err != nil {
				t.Fatalf("ApplyMigrations() error = %v", err)
			}
			if !reflect.DeepEqual(applied, tc.want) {
				t.Errorf("applied = %v, want %v", applied, tc.want)
			}
			pool.assertDone()
			for _, tx := range tc.txs {
				tx.assertDone()
				if !tx.committed {
					t.Error("migration transaction not committed")
				}
			}
		})
	}
}

func TestApplyMigrationsRollsBackFailedMigration(t *testing.T) {
	tx1 := &mockTx{execs: []execExpectation{
		{expect: initSchema, err: fmt.Errorf("syntax error")},
	}}
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQ, value: true},
			{expect: versionQ, args: []any{"001_init.sql"}, value: false},
		},
		txs: []*mockTx{tx1},
	}

	applied, err := ApplyMigrations(context.Background(), pool)
	if err == nil {
		t.Fatal("expected error from failed migration")
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none", applied)
	}
	if !tx1.rolled || tx1.committed {
		t.Fatalf("expected rollback without commit, rolled=%v committed=%v", tx1.rolled, tx1.committed)
	}
	pool.assertDone()
}

func TestMigrationVersionsSortsSQLFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("-- later")},
		"002_second.sql": {Data: []byte("-- second")},
		"README.md":      {Data: []byte("notes")},
		"001_first.sql":  {Data: []byte("-- first")},
		"drafts/x.sql":   {Data: []byte("-- nested")},
	}

	got, err := migrationVersions(fsys)
	if err != nil {
		t.Fatalf("migrationVersions() error = %v", err)
	}
	want := []string{"001_first.sql", "002_second.sql", "010_later.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
}

type queryExpectation struct {
	expect *regexp.Regexp
	args   []any
	value  any
	err    error
}

type execExpectation struct {
	expect *regexp.Regexp
	args   []any
	tag    string
	err    error
}

func (e execExpectation) commandTag() pgconn.CommandTag {
	if e.tag == "" {
		return pgconn.NewCommandTag("MOCK")
	}
	return pgconn.NewCommandTag(e.tag)
}

type mockPool struct {
	t       *testing.T
	queries []queryExpectation
	execs   []execExpectation
	txs     []*mockTx
	txIdx   int
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(m.queries) == 0 {
		m.t.Fatalf("unexpected query: %s", sql)
	}
	exp := m.queries[0]
	m.queries = m.queries[1:]
	if !exp.expect.MatchString(sql) {
		m.t.Fatalf("query mismatch: %s", sql)
	}
	assertArgs(m.t, exp.args, args)
	return mockRow{value: exp.value, err: exp.err}
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if len(m.execs) == 0 {
		m.t.Fatalf("unexpected exec: %s", sql)
	}
	exp := m.execs[0]
	m.execs = m.execs[1:]
	if !exp.expect.MatchString(sql) {
		m.t.Fatalf("exec mismatch: %s", sql)
	}
	assertArgs(m.t, exp.args, arguments)
	return exp.commandTag(), exp.err
}

func (m *mockPool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	if m.txIdx >= len(m.txs) {
		m.t.Fatalf("unexpected begin tx (no more transactions)")
	}
	tx := m.txs[m.txIdx]
	m.txIdx++
	tx.started = true
	return tx, nil
}
func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.t.Fatalf("unexpected row query: %s", sql)
	return nil, nil
}
func (m *mockPool) Ping(ctx context.Context) error { return nil }

func (m *mockPool) assertDone() {
	if len(m.queries) != 0 {
		m.t.Fatalf("pending queries: %v", m.queries)
	}
	if len(m.execs) != 0 {
		m.t.Fatalf("pending execs: %v", m.execs)
	}
	if m.txIdx != len(m.txs) {
		m.t.Fatalf("expected %d transactions, got %d", len(m.txs), m.txIdx)
	}
}

type mockRow struct {
	value any
	err   error
}

func (m mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("unexpected dest count: %d", len(dest))
	}
	switch v := m.value.(type) {
	case bool:
		ptr, ok := dest[0].(*bool)
		if !ok {
			return fmt.Errorf("expected *bool destination")
		}
		*ptr = v
	case int:
		ptr, ok := dest[0].(*int)
		if !ok {
			return fmt.Errorf("expected *int destination")
		}
		*ptr = v
	case string:
		ptr, ok := dest[0].(*string)
		if !ok {
			return fmt.Errorf("expected *string destination")
		}
		*ptr = v
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

type mockTx struct {
	execs     []execExpectation
	queries   []queryExpectation
	started   bool
	committed bool
	rolled    bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("unexpected nested begin")
}
func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	m.rolled = true
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("unexpected CopyFrom")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return emptyBatchResults{}
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("unexpected Prepare")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if len(m.execs) == 0 {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected tx exec: %s", sql)
	}
	exp := m.execs[0]
	m.execs = m.execs[1:]
	if !exp.expect.MatchString(sql) {
		return pgconn.CommandTag{}, fmt.Errorf("exec mismatch: %s", sql)
	}
	if err := assertArgs(nil, exp.args, arguments); err != nil {
		return pgconn.CommandTag{}, err
	}
	return exp.commandTag(), exp.err
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(m.queries) == 0 {
		return mockRow{err: fmt.Errorf("unexpected queryrow: %s", sql)}
	}
	exp := m.queries[0]
	m.queries = m.queries[1:]
	if !exp.expect.MatchString(sql) {
		return mockRow{err: fmt.Errorf("queryrow mismatch: %s", sql)}
	}
	if err := assertArgs(nil, exp.args, args); err != nil {
		return mockRow{err: err}
	}
	return mockRow{value: exp.value, err: exp.err}
}
func (m *mockTx) Conn() *pgx.Conn { return nil }

func (m *mockTx) assertDone() {
	if len(m.execs) != 0 {
		panic(fmt.Sprintf("pending tx execs: %v", m.execs))
	}
	if len(m.queries) != 0 {
		panic(fmt.Sprintf("pending tx queries: %v", m.queries))
	}
	if !m.committed && !m.rolled {
		panic("transaction not finished")
	}
}

func assertArgs(t *testing.T, expected, actual []any) error {
	if len(expected) == 0 {
		return nil
	}
	if len(expected) != len(actual) {
		if t != nil {
			t.Fatalf("argument length mismatch: expected %d got %d", len(expected), len(actual))
		}
		return fmt.Errorf("argument length mismatch")
	}
	for i, exp := range expected {
		if exp == nil {
			continue
		}
		if exp != actual[i] {
			if t != nil {
				t.Fatalf("argument mismatch at %d: expected %v got %v", i, exp, actual[i])
			}
			return fmt.Errorf("argument mismatch")
		}
	}
	return nil
}

type emptyBatchResults struct{}

func (emptyBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, fmt.Errorf("unexpected batch exec")
}
func (emptyBatchResults) Query() (pgx.Rows, error) { return nil, fmt.Errorf("unexpected batch query") }
func (emptyBatchResults) QueryRow() pgx.Row {
	return mockRow{err: fmt.Errorf("unexpected batch queryrow")}
}
func (emptyBatchResults) Close() error { return nil }
