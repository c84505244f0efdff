package lesson

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jkaninda/shellguide/internal/validator"
)

// ErrNoActiveLesson is returned by Record when no lesson is in progress.
var ErrNoActiveLesson = errors.New("no active lesson")

// LessonLockedError is returned when entering a lesson whose prerequisite
// is not complete.
type LessonLockedError struct {
	Lesson   string
	Requires string
}

func (e *LessonLockedError) Error() string {
	return fmt.Sprintf("lesson %s is locked: complete %s first", e.Lesson, e.Requires)
}

// State is the progression state of one lesson.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState is the inverse of State.String. Unknown values map to
// StateNotStarted.
func ParseState(s string) State {
	switch s {
	case "in_progress":
		return StateInProgress
	case "complete":
		return StateComplete
	default:
		return StateNotStarted
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is the persisted progress of one lesson.
type Status struct {
	LessonID string `json:"lesson_id"`
	State    State  `json:"state"`
	Index    int    `json:"index"`
	Attempts int    `json:"attempts"`
}

// ProgressStore persists lesson progress per learner.
type ProgressStore interface {
	SaveProgress(ctx context.Context, learner string, status Status) error
	LoadProgress(ctx context.Context, learner string) ([]Status, error)
}

// Transition reports what one recorded attempt did to the progression.
type Transition struct {
	Lesson         string     `json:"lesson"`
	Advanced       bool       `json:"advanced"`
	LessonComplete bool       `json:"lesson_complete"`
	Next           *Challenge `json:"-"`
	RevealHint     bool       `json:"reveal_hint"`
	Attempts       int        `json:"attempts"`
}

type progress struct {
	state     State
	index     int
	attempts  int
	hintShown bool
}

// Tracker is the progression state machine for one learner. Per lesson:
// NotStarted -> InProgress -> Complete, Complete being terminal. At most
// one lesson is active at a time.
type Tracker struct {
	catalog *Catalog

	mu       sync.Mutex
	progress map[string]*progress
	active   string
}

// NewTracker creates a Tracker with every lesson NotStarted.
func NewTracker(c *Catalog) *Tracker {
	return &Tracker{catalog: c, progress: make(map[string]*progress)}
}

// Catalog returns the catalog the tracker walks.
func (t *Tracker) Catalog() *Catalog { return t.catalog }

func (t *Tracker) get(id string) *progress {
	p, ok := t.progress[id]
	if !ok {
		p = &progress{}
		t.progress[id] = p
	}
	return p
}

// Enter makes id the active lesson and returns its current challenge.
// Entering a complete lesson replays it from the start without leaving
// the Complete state.
func (t *Tracker) Enter(id string) (*Challenge, error) {
	l, err := t.catalog.Lesson(id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if l.Requires != "" && t.get(l.Requires).state != StateComplete {
		return nil, &LessonLockedError{Lesson: id, Requires: l.Requires}
	}

	p := t.get(id)
	switch p.state {
	case StateNotStarted:
		p.state = StateInProgress
		p.index = 0
	case StateComplete:
		p.index = 0
	}
	if p.index >= len(l.Challenges) {
		p.index = 0
	}
	p.attempts = 0
	p.hintShown = false
	t.active = id
	return l.Challenges[p.index], nil
}

// Current returns the active lesson and challenge.
func (t *Tracker) Current() (*Lesson, *Challenge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == "" {
		return nil, nil, false
	}
	l, err := t.catalog.Lesson(t.active)
	if err != nil {
		return nil, nil, false
	}
	c, ok := l.Challenge(t.get(t.active).index)
	return l, c, ok
}

// Position returns the 1-based index of the current challenge and the
// number of challenges in the active lesson.
func (t *Tracker) Position() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == "" {
		return 0, 0
	}
	l, err := t.catalog.Lesson(t.active)
	if err != nil {
		return 0, 0
	}
	return t.get(t.active).index + 1, len(l.Challenges)
}

// Record applies the feedback of an attempt on the current challenge.
// CORRECT and ACCEPTABLE advance; anything else keeps the index and
// reveals the hint.
func (t *Tracker) Record(fb validator.Feedback) (Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == "" {
		return Transition{}, ErrNoActiveLesson
	}
	l, err := t.catalog.Lesson(t.active)
	if err != nil {
		return Transition{}, err
	}
	p := t.get(t.active)
	p.attempts++
	tr := Transition{Lesson: l.ID, Attempts: p.attempts}

	if !fb.Advances() {
		tr.RevealHint = true
		p.hintShown = true
		return tr, nil
	}

	tr.Advanced = true
	p.attempts = 0
	p.hintShown = false
	p.index++
	if p.index >= len(l.Challenges) {
		p.state = StateComplete
		p.index = 0
		tr.LessonComplete = true
		t.active = ""
		return tr, nil
	}
	tr.Next = l.Challenges[p.index]
	return tr, nil
}

// HintShown reports whether the current challenge's hint was revealed.
func (t *Tracker) HintShown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == "" {
		return false
	}
	return t.get(t.active).hintShown
}

// State returns the state of lesson id.
func (t *Tracker) State(id string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(id).state
}

// Unlocked reports whether lesson id can be entered.
func (t *Tracker) Unlocked(id string) bool {
	l, err := t.catalog.Lesson(id)
	if err != nil {
		return false
	}
	if l.Requires == "" {
		return true
	}
	return t.State(l.Requires) == StateComplete
}

// NextLesson returns the first unlocked lesson that is not complete.
func (t *Tracker) NextLesson() (*Lesson, bool) {
	for _, l := range t.catalog.Lessons() {
		if t.State(l.ID) != StateComplete && t.Unlocked(l.ID) {
			return l, true
		}
	}
	return nil, false
}

// Status returns the persisted form of lesson id.
func (t *Tracker) Status(id string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.get(id)
	return Status{LessonID: id, State: p.state, Index: p.index, Attempts: p.attempts}
}

// Statuses returns the progress of every lesson in catalog order.
func (t *Tracker) Statuses() []Status {
	lessons := t.catalog.Lessons()
	out := make([]Status, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, t.Status(l.ID))
	}
	return out
}

// Restore loads persisted progress. Unknown lessons are ignored and
// indexes are clamped to the lesson length. No lesson becomes active.
func (t *Tracker) Restore(statuses []Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range statuses {
		l, err := t.catalog.Lesson(s.LessonID)
		if err != nil {
			continue
		}
		p := t.get(s.LessonID)
		p.state = s.State
		p.index = s.Index
		if p.index < 0 || p.index >= len(l.Challenges) {
			p.index = 0
		}
	}
	t.active = ""
}
