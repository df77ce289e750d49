package database

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 1")},
		"002_usage.sql":   {Data: []byte("SELECT 1")},
		"001_init.sql":    {Data: []byte("SELECT 1")},
		"README.md":       {Data: []byte("notes")},
		"old/003_bad.sql": {Data: []byte("SELECT 1")},
	}
	got, err := migrationFiles(fsys)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"001_init.sql", "002_usage.sql", "010_later.sql"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestEmbeddedSchema(t *testing.T) {
	fsys := MigrationSource("")
	files, err := migrationFiles(fsys)
	if err != nil || len(files) == 0 {
		t.Fatalf("embedded migrations: %v %v", files, err)
	}
	sql, err := fs.ReadFile(fsys, files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"tenants", "users", "api_keys", "stt_usage_logs"} {
		if !strings.Contains(string(sql), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema is missing %s", table)
		}
	}
}
