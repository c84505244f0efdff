package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/shellguide/internal/ledger"
)

// LedgerRepository implements ledger.Store.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a LedgerRepository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// SaveEntry upserts a mastered command. The first mastery time is kept.
func (r *LedgerRepository) SaveEntry(ctx context.Context, learner string, entry ledger.Entry) error {
	m := toMasteredModel(learner, entry)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "learner"}, {Name: "command"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "lesson_id", "category", "updated_at"}),
		}).
		Create(&m).Error; err != nil {
		return fmt.Errorf("saving mastered command %q: %w", entry.Command, err)
	}
	return nil
}

// LoadEntries returns the learner's mastered commands, oldest first.
func (r *LedgerRepository) LoadEntries(ctx context.Context, learner string) ([]ledger.Entry, error) {
	var models []MasteredCommandModel
	if err := r.db.WithContext(ctx).
		Scopes(LearnerScope(learner)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading mastered commands: %w", err)
	}
	out := make([]ledger.Entry, len(models))
	for i := range models {
		out[i] = toLedgerEntry(&models[i])
	}
	return out, nil
}
