package store

import (
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/shiv248/editserver/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies pending SQL migrations in filename order, tracking
// progress in schema_migrations, the same embed.FS pattern the teacher
// uses in pkg/database/migrations.go.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied := 0
	for i, entry := range entries {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, filename, applied_at) VALUES (?, ?, strftime('%s','now'))",
			version, entry.Name(),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
		applied++
	}

	if applied > 0 {
		logging.Info("applied migrations", "count", applied)
	} else {
		logging.Debug("schema up to date", "version", currentVersion)
	}
	return nil
}
