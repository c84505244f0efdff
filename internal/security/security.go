// Package security implements the command policy layered on top of the
// executor allowlist and the append-only audit log of attempts.
package security

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned when a policy refuses a command.
var ErrPermissionDenied = errors.New("permission denied")

// AuditEvent is a single entry in the append-only attempt log.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	SessionID     string    `json:"session_id"`
	Learner       string    `json:"learner"`
	Lesson        string    `json:"lesson,omitempty"`
	Challenge     string    `json:"challenge,omitempty"`
	Command       string    `json:"command"`
	Status        string    `json:"status"`   // executor status: "success", "failure", "blocked", "rejected"
	Feedback      string    `json:"feedback"` // validator kind, e.g. "CORRECT"
	Reason        string    `json:"reason,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
}

// Auditor records attempts. Satisfied by *AuditLogger (JSONL file),
// *StoreAuditLogger (database) and Nop.
type Auditor interface {
	LogAttempt(ctx context.Context, event AuditEvent) error
	Close() error
}

// Nop discards audit events.
type Nop struct{}

func (Nop) LogAttempt(context.Context, AuditEvent) error { return nil }

func (Nop) Close() error { return nil }
