package security

import "context"

// AuditStore is an append-only store for audit events.
// No update or delete methods: immutability is enforced at the interface level.
type AuditStore interface {
	// Append writes a single audit event. Never updates or deletes.
	Append(ctx context.Context, event AuditEvent) error
	// Recent returns up to limit events of a session, newest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]AuditEvent, error)
}
