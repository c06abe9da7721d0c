package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testMigrationsDir = "../../db/migrations"

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	ups, err := readMigrations(testMigrationsDir, "up")
	if err != nil {
		t.Fatalf("read up migrations: %v", err)
	}
	downs, err := readMigrations(testMigrationsDir, "down")
	if err != nil {
		t.Fatalf("read down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}
	if len(ups) != len(downs) {
		t.Fatalf("expected %d down files, got %d", len(ups), len(downs))
	}
	seen := map[string]bool{}
	for i := range ups {
		if seen[ups[i].version] {
			t.Fatalf("duplicate up migration for version %s", ups[i].version)
		}
		seen[ups[i].version] = true
		if ups[i].version != downs[i].version {
			t.Fatalf("version %s has no matching down file", ups[i].version)
		}
	}
}

func TestReadMigrationsSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt", "0003_c.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := readMigrations(dir, "up")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(files) != 2 || files[0].name != "0001_a.up.sql" || files[1].name != "0002_b.up.sql" {
		t.Fatalf("unexpected up files: %+v", files)
	}
}

func TestInitMigrationDeclaresTenantColumns(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join(testMigrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	body := string(contents)
	for _, fragment := range []string{
		"CONSTRAINT chk_cases_deadline CHECK (deadline >= start_date)",
		"CREATE UNIQUE INDEX uq_contacts_main ON contacts(client_id) WHERE is_main",
		"CONSTRAINT chk_folders_not_self",
		"number VARCHAR(50) NOT NULL UNIQUE",
		"case_number VARCHAR(100) NOT NULL UNIQUE",
	} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("init migration is missing %q", fragment)
		}
	}
}
