package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrLimitReached is returned when the registry is full.
var ErrLimitReached = errors.New("too many active sessions")

// Registry holds the live sessions of a server.
type Registry struct {
	base   Config
	limit  int
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. base supplies everything but the id and
// learner of new sessions. limit <= 0 means no limit.
func NewRegistry(base Config, limit int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{base: base, limit: limit, logger: logger, sessions: make(map[string]*Session)}
}

// Create starts a new session for learner.
func (r *Registry) Create(ctx context.Context, learner string) (*Session, error) {
	r.mu.Lock()
	if r.limit > 0 && len(r.sessions) >= r.limit {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (limit %d)", ErrLimitReached, r.limit)
	}
	r.mu.Unlock()

	cfg := r.base
	cfg.ID = ""
	cfg.Learner = learner
	s, err := New(ctx, cfg, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove closes and forgets the session with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Close()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of the live sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Idle returns the ids of sessions inactive since before cutoff.
func (r *Registry) Idle(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every session.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
