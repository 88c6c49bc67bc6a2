package database

import (
	"strings"
	"time"
)

// HistoryConfig holds configuration for the playback history store
type HistoryConfig struct {
	DatabasePath    string        `env:"DB_PATH"`
	Retention       time.Duration `env:"RETENTION" envDefault:"720h"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"0 0 4 * * *"`
	MaxConnections  int           `env:"MAX_CONNECTIONS" envDefault:"4"`
	WALMode         bool          `env:"WAL_MODE" envDefault:"true"`
	SynchronousMode string        `env:"SYNCHRONOUS_MODE" envDefault:"NORMAL"`
}

// DefaultHistoryConfig returns a configuration with sensible defaults
func DefaultHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		DatabasePath:    "cozycat.db",
		Retention:       30 * 24 * time.Hour,
		CleanupSchedule: "0 0 4 * * *",
		MaxConnections:  4,
		WALMode:         true,
		SynchronousMode: "NORMAL",
	}
}

// Enabled reports whether a database path is configured.
func (c *HistoryConfig) Enabled() bool {
	return c != nil && strings.TrimSpace(c.DatabasePath) != ""
}

// Validate validates the history configuration
func (c *HistoryConfig) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.Retention < time.Hour {
		return ErrInvalidRetention
	}
	switch strings.ToUpper(c.SynchronousMode) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return ErrInvalidSynchronousMode
	}
	return nil
}

// EventType is what happened to a track.
type EventType string

const (
	EventPlayed   EventType = "played"
	EventSkipped  EventType = "skipped"
	EventFinished EventType = "finished"
	EventStopped  EventType = "stopped"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventPlayed, EventSkipped, EventFinished, EventStopped:
		return true
	}
	return false
}

// Event is one row of the playback history.
type Event struct {
	ID        string
	GuildID   string
	Title     string
	URL       string
	Type      EventType
	Strategy  string
	Detail    string
	CreatedAt time.Time
}
