package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// migrationScript represents a single schema migration
type migrationScript struct {
	Version int
	Name    string
	UpSQL   string
}

func (m *migrationScript) checksum() string {
	return fmt.Sprintf("%x", md5.Sum([]byte(m.UpSQL)))
}

var migrations = []*migrationScript{
	{
		Version: 1,
		Name:    "playback_events",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS playback_events (
				id TEXT PRIMARY KEY,
				guild_id TEXT NOT NULL,
				title TEXT NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				event TEXT NOT NULL,
				strategy TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "playback_events_indexes",
		UpSQL: `
			CREATE INDEX IF NOT EXISTS idx_playback_events_guild_created ON playback_events(guild_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_playback_events_created ON playback_events(created_at);
		`,
	},
}

// migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	pending := make([]*migrationScript, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, m.Version, m.Name, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func runMigration(db *sql.DB, m *migrationScript) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO schema_migrations (version, name, checksum, applied_at)
		VALUES (?, ?, ?, ?)
	`, m.Version, m.Name, m.checksum(), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update migration tracking: %w", err)
	}
	return tx.Commit()
}
