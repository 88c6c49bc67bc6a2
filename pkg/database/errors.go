package database

import "errors"

// Configuration errors
var (
	ErrInvalidDatabasePath    = errors.New("invalid database path")
	ErrInvalidMaxConnections  = errors.New("invalid max connections")
	ErrInvalidRetention       = errors.New("invalid history retention")
	ErrInvalidSynchronousMode = errors.New("invalid synchronous mode")
)

// Operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrInvalidEventType     = errors.New("invalid event type")
	ErrInvalidLimit         = errors.New("invalid limit")
)
