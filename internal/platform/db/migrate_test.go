package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_case_paper.sql", "CREATE TABLE upload_record (id UUID);")
	writeMigration(t, dir, "002_indexes.sql", "CREATE INDEX idx ON upload_record (id);")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "001_case_paper.sql" {
		t.Errorf("name = %q", migrations[0].Name)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "010_later.sql", "SELECT 10;")
	writeMigration(t, dir, "002_second.sql", "SELECT 2;")
	writeMigration(t, dir, "001_first.sql", "SELECT 1;")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	want := []int{1, 2, 10}
	for i, mig := range migrations {
		if mig.Version != want[i] {
			t.Errorf("migrations[%d].Version = %d, want %d", i, mig.Version, want[i])
		}
	}
}

func TestLoadMigrations_SkipsInvalidNames(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_valid.sql", "SELECT 1;")
	writeMigration(t, dir, "notes.txt", "not sql")
	writeMigration(t, dir, "abc_bad.sql", "SELECT 0;")
	writeMigration(t, dir, "nounderscorename.sql", "SELECT 0;")

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("len = %d, want 1", len(migrations))
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	m := NewMigrator(nil, t.TempDir())
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("len = %d, want 0", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
