package postgres

import (
	"gorm.io/gorm"
)

// LearnerScope returns a GORM scope that filters by learner.
// Applied to every per-learner query so one learner never reads another's rows.
func LearnerScope(learner string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("learner = ?", learner)
	}
}
