package postgres

import (
	"time"

	"github.com/google/uuid"
)

// MasteredCommandModel maps to the "mastered_commands" table.
type MasteredCommandModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Learner     string    `gorm:"not null;uniqueIndex:idx_mastered_learner_command"`
	Command     string    `gorm:"not null;uniqueIndex:idx_mastered_learner_command"`
	Description string
	LessonID    string
	Category    string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (MasteredCommandModel) TableName() string { return "mastered_commands" }

// LessonProgressModel maps to the "lesson_progress" table.
type LessonProgressModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Learner        string    `gorm:"not null;uniqueIndex:idx_progress_learner_lesson"`
	LessonID       string    `gorm:"not null;uniqueIndex:idx_progress_learner_lesson"`
	State          string    `gorm:"not null;default:'not_started'"`
	ChallengeIndex int       `gorm:"not null;default:0"`
	Attempts       int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (LessonProgressModel) TableName() string { return "lesson_progress" }

// AttemptEventModel maps to the "attempt_events" table. Rows are never
// updated or deleted.
type AttemptEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID     string    `gorm:"not null;index"`
	Learner       string    `gorm:"index"`
	Lesson        string
	Challenge     string
	Command       string `gorm:"not null"`
	Status        string `gorm:"not null"`
	Feedback      string
	Reason        string
	DurationMS    int64
	CorrelationID string
	CreatedAt     time.Time `gorm:"index"`
}

func (AttemptEventModel) TableName() string { return "attempt_events" }

// AllModels lists every model in migration order.
func AllModels() []any {
	return []any{
		&MasteredCommandModel{},
		&LessonProgressModel{},
		&AttemptEventModel{},
	}
}
