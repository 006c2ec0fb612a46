package store

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func latestVersion() int {
	sorted := sortedMigrations()
	return sorted[len(sorted)-1].Version
}

func TestRunMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db, dialect{name: DriverSQLite}); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != latestVersion() {
		t.Fatalf("expected version %d, got %d", latestVersion(), version)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='images'").Scan(&count); err != nil {
		t.Fatalf("check images: %v", err)
	}
	if count != 1 {
		t.Fatal("images table not created")
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)
	d := dialect{name: DriverSQLite}

	if err := runMigrations(db, d); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db, d); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if rows != len(migrations) {
		t.Fatalf("expected %d migration rows, got %d", len(migrations), rows)
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 {
		t.Fatalf("expected current 0, got %d", plan.CurrentVersion)
	}
	if plan.AvailableVersion != latestVersion() {
		t.Fatalf("expected available %d, got %d", latestVersion(), plan.AvailableVersion)
	}
	if len(plan.Pending) != len(migrations) {
		t.Fatalf("expected %d pending, got %d", len(migrations), len(plan.Pending))
	}

	if err := runMigrations(db, dialect{name: DriverSQLite}); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	plan, err = MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan after migrate: %v", err)
	}
	if len(plan.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %#v", plan.Pending)
	}
}

func TestRebindPostgres(t *testing.T) {
	got := dialect{name: DriverPostgres}.rebind("UPDATE images SET comment = ? WHERE filename = ?")
	want := "UPDATE images SET comment = $1 WHERE filename = $2"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if q := (dialect{name: DriverSQLite}).rebind("a = ?"); q != "a = ?" {
		t.Fatalf("sqlite query should be unchanged, got %q", q)
	}
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"", "sqlite", "SQLite3"} {
		d, err := dialectFor(name)
		if err != nil || d.name != DriverSQLite {
			t.Fatalf("expected sqlite for %q, got %v %v", name, d, err)
		}
	}
	for _, name := range []string{"postgres", "postgresql", "pg"} {
		d, err := dialectFor(name)
		if err != nil || d.name != DriverPostgres {
			t.Fatalf("expected postgres for %q, got %v %v", name, d, err)
		}
	}
	if _, err := dialectFor("mysql"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := OpenWithOptions(Options{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected missing dsn to fail")
	}
}
