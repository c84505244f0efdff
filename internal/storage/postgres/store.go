package postgres

import (
	"context"
	"sync"

	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/security"
	"github.com/jkaninda/shellguide/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps the existing DB and lazily creates sub-store repositories.
type Store struct {
	pgDB *DB

	mu       sync.Mutex
	ledger   ledger.Store
	progress lesson.ProgressStore
	audit    security.AuditStore
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via autoMigrate.
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// DB returns the wrapped connection.
func (s *Store) DB() *DB {
	return s.pgDB
}

func (s *Store) Ledger() ledger.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger == nil {
		s.ledger = NewLedgerRepository(s.pgDB.GormDB())
	}
	return s.ledger
}

func (s *Store) Progress() lesson.ProgressStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		s.progress = NewProgressRepository(s.pgDB.GormDB())
	}
	return s.progress
}

func (s *Store) Audit() security.AuditStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = NewAuditRepository(s.pgDB.GormDB())
	}
	return s.audit
}
