package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/security"
)

// --- Mastered commands ---

func toMasteredModel(learner string, e ledger.Entry) MasteredCommandModel {
	return MasteredCommandModel{
		ID:          uuid.New(),
		Learner:     learner,
		Command:     e.Command,
		Description: e.Description,
		LessonID:    e.LessonID,
		Category:    e.Category,
	}
}

func toLedgerEntry(m *MasteredCommandModel) ledger.Entry {
	return ledger.Entry{
		Command:     m.Command,
		Description: m.Description,
		LessonID:    m.LessonID,
		Category:    m.Category,
	}
}

// --- Progress ---

func toProgressModel(learner string, s lesson.Status) LessonProgressModel {
	return LessonProgressModel{
		ID:             uuid.New(),
		Learner:        learner,
		LessonID:       s.LessonID,
		State:          s.State.String(),
		ChallengeIndex: s.Index,
		Attempts:       s.Attempts,
	}
}

func toProgressStatus(m *LessonProgressModel) lesson.Status {
	return lesson.Status{
		LessonID: m.LessonID,
		State:    lesson.ParseState(m.State),
		Index:    m.ChallengeIndex,
		Attempts: m.Attempts,
	}
}

// --- Audit ---

func toAttemptModel(event security.AuditEvent) AttemptEventModel {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return AttemptEventModel{
		ID:            uuid.New(),
		SessionID:     event.SessionID,
		Learner:       event.Learner,
		Lesson:        event.Lesson,
		Challenge:     event.Challenge,
		Command:       event.Command,
		Status:        event.Status,
		Feedback:      event.Feedback,
		Reason:        event.Reason,
		DurationMS:    event.DurationMS,
		CorrelationID: event.CorrelationID,
		CreatedAt:     ts,
	}
}

func toAuditDomain(m *AttemptEventModel) security.AuditEvent {
	return security.AuditEvent{
		Timestamp:     m.CreatedAt,
		CorrelationID: m.CorrelationID,
		SessionID:     m.SessionID,
		Learner:       m.Learner,
		Lesson:        m.Lesson,
		Challenge:     m.Challenge,
		Command:       m.Command,
		Status:        m.Status,
		Feedback:      m.Feedback,
		Reason:        m.Reason,
		DurationMS:    m.DurationMS,
	}
}
