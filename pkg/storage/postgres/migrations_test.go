package postgres

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_index.sql":  {Data: []byte("CREATE INDEX x ON t (a);")},
		"migrations/001_create.sql": {Data: []byte("CREATE TABLE t (a int);")},
		"migrations/010_later.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("not sql")},
	}

	pending, err := pendingMigrations(fsys, map[int]bool{1: true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %+v, want 2 entries", pending)
	}
	if pending[0].version != 2 || pending[1].version != 10 {
		t.Errorf("order = %d, %d; want 2, 10", pending[0].version, pending[1].version)
	}
}

func TestPendingMigrations_BadName(t *testing.T) {
	for _, name := range []string{"migrations/create.sql", "migrations/abc_create.sql"} {
		fsys := fstest.MapFS{name: {Data: []byte("SELECT 1;")}}
		if _, err := pendingMigrations(fsys, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	pending, err := pendingMigrations(migrationFiles, nil)
	if err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
	if len(pending) == 0 || pending[0].version != 1 {
		t.Errorf("pending = %+v, want to start at version 1", pending)
	}
}
