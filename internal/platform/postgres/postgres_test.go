package postgres

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for version := range ups {
		if !downs[version] {
			t.Errorf("migration %s has no down file", version)
		}
	}
}

func TestContentMigrationKeepsGlobalRowsDistinct(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000001_create_content_entries.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(data)
	for _, want := range []string{
		"ON content_entries (key, language)\n    WHERE region IS NULL",
		"ON content_entries (key, language, region)\n    WHERE region IS NOT NULL",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected partial unique index %q", want)
		}
	}
	if strings.Contains(sql, "COALESCE") {
		t.Fatal("global rows must not share a sentinel value with any region code")
	}
}
