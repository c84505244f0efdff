package protocol

import (
	"time"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/session"
)

// Challenge describes the active challenge. The expected answer
// and the validator are never exposed.
type Challenge struct {
	Lesson        string `json:"lesson"`
	LessonTitle   string `json:"lesson_title"`
	ID            string `json:"id"`
	Prompt        string `json:"prompt"`
	Teaching      string `json:"teaching,omitempty"`
	GUIEquivalent string `json:"gui_equivalent,omitempty"`
	Index         int    `json:"index"`
	Total         int    `json:"total"`
	HintShown     bool   `json:"hint_shown"`
}

// Session is the JSON view of a session.
type Session struct {
	ID         string     `json:"id"`
	Learner    string     `json:"learner"`
	Cwd        string     `json:"cwd"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive time.Time  `json:"last_active"`
	Challenge  *Challenge `json:"challenge,omitempty"`
	// Finished is set when every lesson is complete.
	Finished bool `json:"finished,omitempty"`
}

// Step is one executed command of a chain.
type Step struct {
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Status    string   `json:"status"`
	ExitCode  int      `json:"exit_code"`
	Stdout    string   `json:"stdout,omitempty"`
	Stderr    string   `json:"stderr,omitempty"`
	Message   string   `json:"message,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	TimedOut  bool     `json:"timed_out,omitempty"`
}

// Feedback is the validator verdict.
type Feedback struct {
	Kind            string `json:"kind"`
	Message         string `json:"message"`
	Explanation     string `json:"explanation,omitempty"`
	AttemptedEffect string `json:"attempted_effect,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
}

// Outcome is the JSON view of one evaluated attempt.
type Outcome struct {
	Command        string        `json:"command"`
	Status         string        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Steps          []Step        `json:"steps"`
	Cwd            string        `json:"cwd"`
	Feedback       Feedback      `json:"feedback"`
	Advanced       bool          `json:"advanced"`
	LessonComplete bool          `json:"lesson_complete"`
	Attempts       int           `json:"attempts"`
	Hint           string        `json:"hint,omitempty"`
	Mastered       *ledger.Entry `json:"mastered,omitempty"`
	Next           *Challenge    `json:"next,omitempty"`
	DurationMS     int64         `json:"duration_ms"`
}

// Lesson is one catalog entry with the learner's progress.
type Lesson struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Requires   string `json:"requires,omitempty"`
	Challenges int    `json:"challenges"`
	State      string `json:"state"`
	Unlocked   bool   `json:"unlocked"`
}

// NewChallenge maps the active position.
func NewChallenge(pos session.Position) *Challenge {
	return &Challenge{
		Lesson:        pos.Lesson.ID,
		LessonTitle:   pos.Lesson.Title,
		ID:            pos.Challenge.ID,
		Prompt:        pos.Challenge.Prompt,
		Teaching:      pos.Challenge.Teaching,
		GUIEquivalent: pos.Challenge.GUIEquivalent,
		Index:         pos.Index,
		Total:         pos.Total,
		HintShown:     pos.HintShown,
	}
}

// NewSession maps s. Finished is set once nothing is left to enter.
func NewSession(s *session.Session) Session {
	resp := Session{
		ID:         s.ID(),
		Learner:    s.Learner(),
		Cwd:        s.Cwd(),
		CreatedAt:  s.CreatedAt(),
		LastActive: s.LastActive(),
	}
	if pos, ok := s.Current(); ok {
		resp.Challenge = NewChallenge(pos)
	} else if _, more := s.Tracker().NextLesson(); !more {
		resp.Finished = true
	}
	return resp
}

func newSteps(steps []executor.Step) []Step {
	out := make([]Step, len(steps))
	for i, st := range steps {
		out[i] = Step{
			Command:   st.Command,
			Args:      st.Args,
			Status:    string(st.Status),
			ExitCode:  st.ExitCode,
			Stdout:    st.Stdout,
			Stderr:    st.Stderr,
			Message:   st.Message,
			Truncated: st.Truncated,
			TimedOut:  st.TimedOut,
		}
	}
	return out
}

// NewOutcome maps an attempt outcome. The hint is included once
// the progression reveals it; Next is read from s after the attempt.
func NewOutcome(o *session.Outcome, s *session.Session) Outcome {
	resp := Outcome{
		Command: o.Command,
		Steps:   []Step{},
		Feedback: Feedback{
			Kind:            o.Feedback.Kind.String(),
			Message:         o.Feedback.Message,
			Explanation:     o.Feedback.Explanation,
			AttemptedEffect: o.Feedback.AttemptedEffect,
			Suggestion:      o.Feedback.Suggestion,
		},
		Advanced:       o.Transition.Advanced,
		LessonComplete: o.Transition.LessonComplete,
		Attempts:       o.Transition.Attempts,
		Mastered:       o.Mastered,
		DurationMS:     o.Duration.Milliseconds(),
	}
	if o.Result != nil {
		resp.Status = string(o.Result.Status)
		resp.Reason = o.Result.Reason
		resp.Steps = newSteps(o.Result.Steps)
		resp.Cwd = o.Result.Cwd
	}
	if s == nil {
		return resp
	}
	if o.Transition.RevealHint {
		if hint, err := s.Hint(); err == nil {
			resp.Hint = hint
		}
	}
	if o.Transition.Advanced {
		if pos, ok := s.Current(); ok {
			resp.Next = NewChallenge(pos)
		}
	}
	return resp
}

// NewLessons lists the catalog. A nil tracker reports every
// lesson as not started.
func NewLessons(c *lesson.Catalog, t *lesson.Tracker) []Lesson {
	if t == nil {
		t = lesson.NewTracker(c)
	}
	lessons := c.Lessons()
	out := make([]Lesson, len(lessons))
	for i, l := range lessons {
		out[i] = Lesson{
			ID:         l.ID,
			Title:      l.Title,
			Category:   l.Category,
			Requires:   l.Requires,
			Challenges: len(l.Challenges),
			State:      t.State(l.ID).String(),
			Unlocked:   t.Unlocked(l.ID),
		}
	}
	return out
}
