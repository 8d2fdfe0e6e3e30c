package schema

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/Sachin-Sharma-20/NL2SQL/internal/database"
)

func TestSnapshotLookupsAreCaseInsensitive(t *testing.T) {
	snap := NewBuilder("MySQL").
		Add("CUSTOMER", Column{Name: "C_CUSTKEY", DataType: "int", Key: "PRI"}).
		Add("CUSTOMER", Column{Name: "C_NAME", DataType: "varchar(25)"}).
		Add("ORDERS", Column{Name: "O_CUSTKEY", DataType: "int", Key: "MUL"}).
		Build()

	if !snap.HasTable("customer") || !snap.HasTable("Orders") {
		t.Fatal("expected tables to match case-insensitively")
	}
	if snap.HasTable("lineitem") {
		t.Fatal("unexpected table lineitem")
	}
	if !snap.HasColumn("c_name") || snap.HasColumn("c_phone") {
		t.Fatal("HasColumn mismatch")
	}
	if !snap.TableHasColumn("orders", "o_custkey") || snap.TableHasColumn("orders", "c_name") {
		t.Fatal("TableHasColumn mismatch")
	}
	cols := snap.ColumnsOf("customer")
	if len(cols) != 2 || cols[0] != "C_CUSTKEY" || cols[1] != "C_NAME" {
		t.Fatalf("ColumnsOf() = %v", cols)
	}
	if snap.ColumnsOf("missing") != nil {
		t.Fatal("ColumnsOf(missing) should be nil")
	}
	tables := snap.Tables()
	if len(tables) != 2 || tables[0] != "CUSTOMER" || tables[1] != "ORDERS" {
		t.Fatalf("Tables() = %v", tables)
	}
}

func TestSnapshotDescribe(t *testing.T) {
	snap := NewBuilder("MySQL").
		Add("customer", Column{Name: "c_custkey", DataType: "int", Key: "PRI"}).
		Add("customer", Column{Name: "c_nationkey", DataType: "int", Key: "MUL"}).
		Add("customer", Column{Name: "c_name", DataType: "varchar(25)"}).
		Build()

	text := snap.Describe()
	if !strings.HasPrefix(text, "-- MySQL Dialect Schema --") {
		t.Fatalf("missing dialect header: %q", text)
	}
	for _, want := range []string{
		"CREATE TABLE customer (",
		"    c_custkey int PRIMARY KEY,",
		"    c_nationkey int (INDEX),",
		"    c_name varchar(25)\n);",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("Describe() missing %q in:\n%s", want, text)
		}
	}
}

func TestSQLLoaderMySQL(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(mysqlColumnsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "column_key"}).
			AddRow("customer", "c_custkey", "int", "PRI").
			AddRow("customer", "c_name", "varchar(25)", "").
			AddRow("orders", "o_orderkey", "int", "PRI"))

	snap, err := SQLLoader{DB: db, Dialect: database.DialectMySQL}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.Dialect() != "MySQL" {
		t.Fatalf("Dialect() = %q", snap.Dialect())
	}
	if !snap.TableHasColumn("customer", "c_name") || !snap.HasTable("orders") {
		t.Fatalf("unexpected snapshot tables %v", snap.Tables())
	}
	assertSQLMock(t, mock)
}

func TestSQLLoaderPostgresUsesCurrentSchema(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`key_column_usage(.|\n)*current_schema\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "column_key"}).
			AddRow("nation", "n_nationkey", "integer", "PRI").
			AddRow("nation", "n_name", "text", ""))

	snap, err := SQLLoader{DB: db, Dialect: database.DialectPostgres}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !snap.HasColumn("n_name") {
		t.Fatal("expected n_name column")
	}
	if !strings.Contains(snap.Describe(), "    n_nationkey integer PRIMARY KEY,") {
		t.Fatalf("Describe() = %s", snap.Describe())
	}
	assertSQLMock(t, mock)
}

func TestSQLLoaderDuckDBMarksPrimaryKeys(t *testing.T) {
	db, err := database.Open(context.Background(), database.DBConfig{Driver: database.DialectDuckDB, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	for _, stmt := range []string{
		"CREATE TABLE nation (n_nationkey INTEGER PRIMARY KEY, n_name VARCHAR)",
		"CREATE TABLE customer (c_custkey INTEGER PRIMARY KEY, c_nationkey INTEGER, c_name VARCHAR)",
	} {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("ExecContext(%q) error = %v", stmt, err)
		}
	}

	snap, err := SQLLoader{DB: db, Dialect: database.DialectDuckDB}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	keys := map[string]string{}
	for _, table := range snap.Tables() {
		for _, col := range snap.Columns(table) {
			keys[table+"."+col.Name] = col.Key
		}
	}
	want := map[string]string{
		"nation.n_nationkey": "PRI",
		"customer.c_custkey": "PRI",
		"customer.c_name":    "",
	}
	for column, key := range want {
		if got, ok := keys[column]; !ok || got != key {
			t.Fatalf("key of %s = %q (present %v), want %q; all keys = %v", column, got, ok, key, keys)
		}
	}
}

func TestSQLLoaderWrapsErrUnavailable(t *testing.T) {
	db, mock := newSQLMock(t)
	cause := errors.New("connection refused")
	mock.ExpectQuery(`information_schema.columns`).WillReturnError(cause)

	_, err := SQLLoader{DB: db, Dialect: database.DialectMySQL}.Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSQLLoaderScanErrorIsUnavailable(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`information_schema.columns`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type", "column_key"}).
			AddRow("customer", "c_custkey", "int", "PRI").
			RowError(0, errors.New("broken pipe")))

	_, err := SQLLoader{DB: db, Dialect: database.DialectMySQL}.Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCatalogCachesWithinTTL(t *testing.T) {
	loader := &countingLoader{}
	catalog := NewCatalog(loader, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	catalog.Clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := catalog.Snapshot(context.Background()); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := catalog.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("loader calls after expiry = %d, want 2", got)
	}

	catalog.Invalidate()
	if _, err := catalog.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("loader calls after invalidate = %d, want 3", got)
	}
}

func TestCatalogZeroTTLReloadsEveryCall(t *testing.T) {
	loader := &countingLoader{}
	catalog := NewCatalog(loader, 0)
	for i := 0; i < 3; i++ {
		if _, err := catalog.Snapshot(context.Background()); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	}
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("loader calls = %d, want 3", got)
	}
}

func TestCatalogCollapsesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{block: release}
	catalog := NewCatalog(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.Snapshot(context.Background()); err != nil {
				t.Errorf("Snapshot() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
}

func TestCatalogPropagatesLoaderError(t *testing.T) {
	catalog := NewCatalog(&countingLoader{err: errors.New("down")}, time.Minute)
	if _, err := catalog.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCatalogSharedLoadOutlivesCancelledCaller(t *testing.T) {
	loader := &contextLoader{started: make(chan struct{}), release: make(chan struct{})}
	catalog := NewCatalog(loader, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := catalog.Snapshot(ctx)
		firstErr <- err
	}()
	<-loader.started
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("Snapshot() error = %v, want context.Canceled", err)
	}

	close(loader.release)
	snap, err := catalog.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() after cancelled caller error = %v", err)
	}
	if !snap.HasTable("customer") {
		t.Fatalf("Tables() = %v", snap.Tables())
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
	if err := loader.ctxErr(); err != nil {
		t.Fatalf("shared load saw ctx error = %v", err)
	}
}

// contextLoader blocks until released and records whether its context was
// cancelled by then.
type contextLoader struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}

	mu  sync.Mutex
	err error
}

func (l *contextLoader) Load(ctx context.Context) (*Snapshot, error) {
	l.calls.Add(1)
	l.once.Do(func() { close(l.started) })
	<-l.release
	l.mu.Lock()
	l.err = ctx.Err()
	l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewBuilder("PostgreSQL").Add("customer", Column{Name: "c_custkey"}).Build(), nil
}

func (l *contextLoader) ctxErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

type countingLoader struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (l *countingLoader) Load(context.Context) (*Snapshot, error) {
	l.calls.Add(1)
	if l.block != nil {
		<-l.block
	}
	if l.err != nil {
		return nil, l.err
	}
	return NewBuilder("MySQL").Add("customer", Column{Name: "c_custkey"}).Build(), nil
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
