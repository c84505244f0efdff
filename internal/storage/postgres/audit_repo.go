package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jkaninda/shellguide/internal/security"
)

// AuditRepository implements security.AuditStore with PostgreSQL.
// Append-only: no Update or Delete methods exist on this type.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a single attempt event. This is the only write method;
// immutability is enforced at the interface level.
func (r *AuditRepository) Append(ctx context.Context, event security.AuditEvent) error {
	model := toAttemptModel(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Recent returns attempt events of a session, newest first. Limit defaults to 100.
func (r *AuditRepository) Recent(ctx context.Context, sessionID string, limit int) ([]security.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []AttemptEventModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}

	events := make([]security.AuditEvent, len(models))
	for i := range models {
		events[i] = toAuditDomain(&models[i])
	}
	return events, nil
}
