package security

import (
	"context"
	"log/slog"
)

// StoreAuditLogger adapts an AuditStore to the Auditor interface.
type StoreAuditLogger struct {
	store  AuditStore
	logger *slog.Logger
}

// NewStoreAuditLogger creates a database-backed audit logger.
func NewStoreAuditLogger(store AuditStore, logger *slog.Logger) *StoreAuditLogger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StoreAuditLogger{
		store:  store,
		logger: logger,
	}
}

// LogAttempt appends an audit event to the database.
func (a *StoreAuditLogger) LogAttempt(ctx context.Context, event AuditEvent) error {
	err := a.store.Append(ctx, event)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to log audit event",
			slog.String("session_id", event.SessionID),
			slog.String("error", err.Error()),
		)
		return err
	}

	a.logger.DebugContext(ctx, "attempt audited (db)",
		slog.String("session_id", event.SessionID),
		slog.String("status", event.Status),
		slog.String("correlation_id", event.CorrelationID),
	)
	return nil
}

// Close is a no-op. The database connection is managed by the storage
// layer and closed separately.
func (a *StoreAuditLogger) Close() error {
	return nil
}
