package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func openState(t *testing.T, path string) *StateDB {
	t.Helper()
	s, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestOpen_CreatesNestedStateFile(t *testing.T) {
	s := openState(t, filepath.Join(t.TempDir(), "nested", "state.db"))
	defer s.Close()

	for _, table := range []string{"config", "schema_version"} {
		var name string
		err := s.SQL().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestOpen_ConnectionPragmas(t *testing.T) {
	s := openState(t, filepath.Join(t.TempDir(), "state.db"))
	defer s.Close()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			if err := s.SQL().QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
				t.Fatalf("PRAGMA %s error = %v", tt.pragma, err)
			}
			if got != tt.want {
				t.Errorf("%s = %s, want %s", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestOpen_UpgradeRunsEachStepOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	first := openState(t, path)
	if _, err := first.SQL().Exec("INSERT INTO config (key, value) VALUES ('k', 'v')"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	first.Close()

	second := openState(t, path)
	defer second.Close()

	var count int
	if err := second.SQL().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("count schema steps error = %v", err)
	}
	entries, _ := schemaFS.ReadDir("migrations")
	if count != len(entries) {
		t.Errorf("schema steps = %d, want %d", count, len(entries))
	}

	var value string
	if err := second.SQL().QueryRow("SELECT value FROM config WHERE key = 'k'").Scan(&value); err != nil || value != "v" {
		t.Errorf("config row after reopen = %q, %v", value, err)
	}
}

func TestStateDSN(t *testing.T) {
	dsn := stateDSN("/data/state.db")
	if !strings.HasPrefix(dsn, "/data/state.db?_pragma=") {
		t.Fatalf("dsn = %q", dsn)
	}
	if n := strings.Count(dsn, "_pragma="); n != len(connPragmas) {
		t.Errorf("dsn has %d pragmas, want %d", n, len(connPragmas))
	}
}
