package store

import (
	"database/sql"
	"testing"
	"time"
)

func TestPoolLimitsPerDialect(t *testing.T) {
	tests := []struct {
		driver   string
		wantOpen int
		wantIdle int
	}{
		{driver: DriverSQLite, wantOpen: 1, wantIdle: 1},
		{driver: "sqlite3", wantOpen: 1, wantIdle: 1},
		{driver: DriverPostgres, wantOpen: 10, wantIdle: 5},
		{driver: "pg", wantOpen: 10, wantIdle: 5},
	}
	for _, tt := range tests {
		d, err := dialectFor(tt.driver)
		if err != nil {
			t.Fatalf("dialect %q: %v", tt.driver, err)
		}
		open, idle := poolLimits(d)
		if open != tt.wantOpen || idle != tt.wantIdle {
			t.Fatalf("%s: expected %d/%d, got %d/%d", tt.driver, tt.wantOpen, tt.wantIdle, open, idle)
		}
	}
}

func TestConfigurePostgresPool(t *testing.T) {
	d, err := dialectFor(DriverPostgres)
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	// lib/pq connects lazily, so no server is needed to inspect pool settings.
	db, err := sql.Open("postgres", "postgres://reimagine@127.0.0.1:1/reimagine?sslmode=disable")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	t.Setenv(maxOpenConnsEnvKey, "")
	if err := configureDB(db, d); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if got := db.Stats().MaxOpenConnections; got != postgresMaxOpenConns {
		t.Fatalf("expected %d open conns, got %d", postgresMaxOpenConns, got)
	}

	t.Setenv(maxOpenConnsEnvKey, "25")
	if err := configureDB(db, d); err != nil {
		t.Fatalf("configure with override: %v", err)
	}
	if got := db.Stats().MaxOpenConnections; got != 25 {
		t.Fatalf("expected env override of 25, got %d", got)
	}
}

func TestIntFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 3},
		{raw: "4", want: 4},
		{raw: " 7 ", want: 7},
		{raw: "bad", want: 3},
		{raw: "0", want: 3},
		{raw: "-2", want: 3},
	}
	for _, tt := range tests {
		t.Setenv(maxIdleConnsEnvKey, tt.raw)
		if got := intFromEnv(maxIdleConnsEnvKey, 3); got != tt.want {
			t.Fatalf("%q: expected %d, got %d", tt.raw, tt.want, got)
		}
	}
}

func TestDurationFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "", want: connMaxLifetime},
		{raw: "45s", want: 45 * time.Second},
		{raw: "30", want: 30 * time.Second},
		{raw: "invalid", want: connMaxLifetime},
	}
	for _, tt := range tests {
		t.Setenv(connMaxLifetimeEnvKey, tt.raw)
		if got := durationFromEnv(connMaxLifetimeEnvKey, connMaxLifetime); got != tt.want {
			t.Fatalf("%q: expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}
