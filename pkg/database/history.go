// Package database stores the playback history in SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryRepository records what each guild played.
type HistoryRepository struct {
	config *HistoryConfig

	mu sync.RWMutex
	db *sql.DB
}

// OpenHistory opens the database at config.DatabasePath and brings the
// schema up to date.
func OpenHistory(ctx context.Context, config *HistoryConfig) (*HistoryRepository, error) {
	if config == nil {
		config = DefaultHistoryConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid history configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryRepository{config: config, db: db}, nil
}

// buildConnectionString builds the SQLite DSN with pragmas
func buildConnectionString(config *HistoryConfig) string {
	params := []string{"_busy_timeout=5000", "_foreign_keys=on"}
	if config.WALMode {
		params = append(params, "_journal_mode=WAL")
	}
	params = append(params, "_synchronous="+strings.ToUpper(config.SynchronousMode))
	return "file:" + config.DatabasePath + "?" + strings.Join(params, "&")
}

func (r *HistoryRepository) conn() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrDatabaseNotConnected
	}
	return r.db, nil
}

// Record stores ev, filling in ID and CreatedAt when empty.
func (r *HistoryRepository) Record(ctx context.Context, ev Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, ev.Type)
	}
	db, err := r.conn()
	if err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO playback_events (id, guild_id, title, url, event, strategy, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.GuildID, ev.Title, ev.URL, string(ev.Type), ev.Strategy, ev.Detail, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record playback event: %w", err)
	}
	return nil
}

// Recent returns up to limit events of a guild, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, guildID string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, guild_id, title, url, event, strategy, detail, created_at
		FROM playback_events
		WHERE guild_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var eventType string
		if err := rows.Scan(&ev.ID, &ev.GuildID, &ev.Title, &ev.URL, &eventType, &ev.Strategy, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playback event: %w", err)
		}
		ev.Type = EventType(eventType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playback events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan removes events created before cutoff and returns how many
// rows were deleted.
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := r.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM playback_events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old playback events: %w", err)
	}
	return res.RowsAffected()
}

// Retention returns the configured retention window.
func (r *HistoryRepository) Retention() time.Duration {
	return r.config.Retention
}

// Ping checks the connection.
func (r *HistoryRepository) Ping(ctx context.Context) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the database. Later calls fail with ErrDatabaseNotConnected.
func (r *HistoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
