package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/shellguide/internal/lesson"
)

// ProgressRepository implements lesson.ProgressStore.
type ProgressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a ProgressRepository.
func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// SaveProgress upserts the status of one lesson.
func (r *ProgressRepository) SaveProgress(ctx context.Context, learner string, status lesson.Status) error {
	m := toProgressModel(learner, status)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "learner"}, {Name: "lesson_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "challenge_index", "attempts", "updated_at"}),
		}).
		Create(&m).Error; err != nil {
		return fmt.Errorf("saving progress for lesson %s: %w", status.LessonID, err)
	}
	return nil
}

// LoadProgress returns every stored lesson status of the learner.
func (r *ProgressRepository) LoadProgress(ctx context.Context, learner string) ([]lesson.Status, error) {
	var models []LessonProgressModel
	if err := r.db.WithContext(ctx).
		Scopes(LearnerScope(learner)).
		Order("lesson_id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	out := make([]lesson.Status, len(models))
	for i := range models {
		out[i] = toProgressStatus(&models[i])
	}
	return out, nil
}
