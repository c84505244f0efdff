// Package storage defines the Store interface that abstracts learner persistence:
// mastered commands, lesson progress and the attempt audit trail.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL (shared servers).
package storage

import (
	"context"

	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/security"
)

// Store is the unified persistence interface for shellguide.
// Both SQLite and PostgreSQL backends implement this interface.
type Store interface {
	// Sub-store accessors. The returned stores share the same underlying connection.
	Ledger() ledger.Store
	Progress() lesson.ProgressStore
	Audit() security.AuditStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver"` // "sqlite" (default), "postgres" or "none"
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from workspace.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"`
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "sqlite"

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"

// DriverNone disables persistence.
const DriverNone = "none"
