package redismigrate

import (
	"errors"

	"github.com/raniellyferreira/redis-live-migrator/migration"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the migrator has been closed
	ErrClosed = errors.New("migrator is closed")

	// ErrNotStarted indicates the migrator has not been started
	ErrNotStarted = errors.New("migrator not started")
)

// Kinded errors surfaced by the engine, re-exported for callers that only
// import this package. See the migration package for the full taxonomy
// (ConnectionError, ReplicationError, UnsupportedTypeError, SubscriberError,
// ConfigurationError).
var (
	ErrAlreadyRunning = migration.ErrAlreadyRunning
	ErrNotRunning     = migration.ErrNotRunning
	ErrSameInstance   = migration.ErrSameInstance
	ErrAuthFailed     = migration.ErrAuthFailed
	ErrConnRefused    = migration.ErrConnRefused
	ErrTimeout        = migration.ErrTimeout
	ErrHostNotFound   = migration.ErrHostNotFound
	ErrConnReset      = migration.ErrConnReset
)
