// Package session binds one learner to one sandbox, the executor, the
// progression tracker and the cheat sheet.
//
// A Session owns its sandbox root for its whole lifetime: the root is
// created by New and destroyed by Close. Attempts are serialized, so the
// before and after snapshots of one attempt never interleave with another.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/sandbox"
	"github.com/jkaninda/shellguide/internal/security"
	"github.com/jkaninda/shellguide/internal/validator"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrNoChallenge is returned when an operation needs an active challenge.
	ErrNoChallenge = errors.New("no active challenge")
)

// DefaultLearner names the learner of sessions created without one.
const DefaultLearner = "local"

// Auditor records attempts.
type Auditor interface {
	LogAttempt(ctx context.Context, event security.AuditEvent) error
}

// Observer follows the session lifecycle and every evaluated attempt.
type Observer interface {
	SessionOpened(sessionID string)
	ObserveAttempt(sessionID string, o *Outcome)
	SessionClosed(sessionID string)
}

// Config configures a Session.
type Config struct {
	// ID names the session and its sandbox directory. Generated when empty.
	ID      string
	Learner string
	// SandboxDir is the absolute directory sandbox roots are created in.
	SandboxDir string
	Catalog    *lesson.Catalog
	Runner     executor.Runner

	// Optional persistence and side consumers.
	Ledger   ledger.Store
	Progress lesson.ProgressStore
	Auditor  Auditor
	Observer Observer
}

// Outcome is everything one submitted attempt produced.
type Outcome struct {
	Command    string             `json:"command"`
	Lesson     string             `json:"lesson"`
	Challenge  string             `json:"challenge"`
	Result     *executor.Result   `json:"result"`
	Feedback   validator.Feedback `json:"feedback"`
	Transition lesson.Transition  `json:"transition"`
	// State is the sandbox right after the attempt.
	State sandbox.State `json:"-"`
	// Mastered is the cheat sheet entry the attempt earned, if any.
	Mastered *ledger.Entry `json:"mastered,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Position describes the active challenge.
type Position struct {
	Lesson    *lesson.Lesson
	Challenge *lesson.Challenge
	Index     int // 1-based
	Total     int
	HintShown bool
}

// Session is one learner's interactive run through the curriculum.
type Session struct {
	id      string
	learner string
	cfg     Config
	box     *sandbox.Manager
	tracker *lesson.Tracker
	sheet   *ledger.CheatSheet
	logger  *slog.Logger
	created time.Time

	// ctx is cancelled by Close to stop an in-flight attempt.
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex // serializes attempts and guards cwd
	cwd string

	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
	lastActive atomic.Int64
}

// New creates a session and acquires its sandbox. Stored progress and
// cheat sheet entries of the learner are restored. The caller must Close
// the session.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Catalog == nil {
		return nil, errors.New("session: catalog is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("session: runner is required")
	}
	if !filepath.IsAbs(cfg.SandboxDir) {
		return nil, fmt.Errorf("%w: sandbox directory %q is not absolute", sandbox.ErrSandboxInit, cfg.SandboxDir)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Learner == "" {
		cfg.Learner = DefaultLearner
	}
	logger = logger.With(slog.String("session_id", cfg.ID))

	tracker := lesson.NewTracker(cfg.Catalog)
	if cfg.Progress != nil {
		statuses, err := cfg.Progress.LoadProgress(ctx, cfg.Learner)
		if err != nil {
			return nil, fmt.Errorf("restoring progress: %w", err)
		}
		tracker.Restore(statuses)
	}
	sheet, err := ledger.Load(ctx, cfg.Ledger, cfg.Learner)
	if err != nil {
		return nil, err
	}

	box, err := sandbox.Create(cfg.SandboxDir, cfg.ID, logger)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      cfg.ID,
		learner: cfg.Learner,
		cfg:     cfg,
		box:     box,
		tracker: tracker,
		sheet:   sheet,
		logger:  logger,
		created: time.Now(),
		ctx:     sctx,
		cancel:  cancel,
		cwd:     ".",
	}
	s.touch()
	logger.Info("session started",
		slog.String("learner", cfg.Learner),
		slog.String("root", box.Root().String()),
	)
	if cfg.Observer != nil {
		cfg.Observer.SessionOpened(cfg.ID)
	}
	return s, nil
}

// Run creates a session, passes it to fn and closes it afterwards.
func Run(ctx context.Context, cfg Config, logger *slog.Logger, fn func(*Session) error) (err error) {
	s, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Learner returns the learner the session belongs to.
func (s *Session) Learner() string { return s.learner }

// Root returns the sandbox root.
func (s *Session) Root() sandbox.Root { return s.box.Root() }

// Tracker exposes the progression state machine for read access.
func (s *Session) Tracker() *lesson.Tracker { return s.tracker }

// CheatSheet returns the learner's cheat sheet.
func (s *Session) CheatSheet() *ledger.CheatSheet { return s.sheet }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

// LastActive returns the time of the last operation.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// Cwd returns the working directory relative to the root.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Start enters a lesson and prepares the sandbox for its current
// challenge. An empty id picks the first unlocked lesson that is not
// complete.
func (s *Session) Start(ctx context.Context, lessonID string) (*lesson.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.touch()

	if lessonID == "" {
		next, ok := s.tracker.NextLesson()
		if !ok {
			return nil, fmt.Errorf("%w: every lesson is complete", ErrNoChallenge)
		}
		lessonID = next.ID
	}
	ch, err := s.tracker.Enter(lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(ch); err != nil {
		return nil, err
	}
	s.saveProgress(ctx, lessonID)
	s.logger.InfoContext(ctx, "lesson entered",
		slog.String("lesson", lessonID),
		slog.String("challenge", ch.ID),
	)
	return ch, nil
}

// Current returns the active challenge.
func (s *Session) Current() (Position, bool) {
	l, ch, ok := s.tracker.Current()
	if !ok {
		return Position{}, false
	}
	i, n := s.tracker.Position()
	return Position{Lesson: l, Challenge: ch, Index: i, Total: n, HintShown: s.tracker.HintShown()}, true
}

// Hint returns the hint of the active challenge.
func (s *Session) Hint() (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	_, ch, ok := s.tracker.Current()
	if !ok {
		return "", ErrNoChallenge
	}
	s.touch()
	return ch.Hint, nil
}

// Reset restores the sandbox of the active challenge to its starting
// layout and returns to the root. Progress is unchanged.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	_, ch, ok := s.tracker.Current()
	if !ok {
		return ErrNoChallenge
	}
	s.touch()
	if err := s.prepare(ch); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "challenge reset", slog.String("challenge", ch.ID))
	return nil
}

// Snapshot returns the current sandbox state.
func (s *Session) Snapshot() (sandbox.State, error) {
	if s.closed.Load() {
		return sandbox.State{}, ErrClosed
	}
	return s.box.Snapshot()
}

// Submit runs line against the active challenge, evaluates it and applies
// the result to the progression. Blank input is rejected without counting
// as an attempt.
func (s *Session) Submit(ctx context.Context, line string) (*Outcome, error) {
	if strings.TrimSpace(line) == "" {
		return nil, executor.ErrEmptyCommand
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	l, ch, ok := s.tracker.Current()
	if !ok {
		return nil, ErrNoChallenge
	}
	s.touch()
	start := time.Now()

	before, err := s.box.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot before attempt: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	res, err := s.cfg.Runner.Run(runCtx, executor.Request{
		Line:      line,
		Root:      s.box.Root(),
		Cwd:       s.cwd,
		Operators: ch.Operators(),
	})
	stop()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("running attempt: %w", err)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	after, err := s.box.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot after attempt: %w", err)
	}
	s.cwd = res.Cwd

	fb := ch.Validator.Evaluate(validator.Attempt{
		Command: line,
		Before:  before,
		After:   after,
		Result:  res,
	})
	tr, err := s.tracker.Record(fb)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Command:    line,
		Lesson:     l.ID,
		Challenge:  ch.ID,
		Result:     res,
		Feedback:   fb,
		Transition: tr,
		State:      after,
	}
	if fb.Advances() && ch.Mastery != nil {
		entry := ledger.Entry{
			Command:     ch.Mastery.Command,
			Description: ch.Mastery.Description,
			LessonID:    l.ID,
			Category:    l.Category,
		}
		s.sheet.Add(entry)
		out.Mastered = &entry
		if s.cfg.Ledger != nil {
			if err := s.cfg.Ledger.SaveEntry(ctx, s.learner, entry); err != nil {
				s.logger.WarnContext(ctx, "saving cheat sheet entry failed", slog.String("error", err.Error()))
			}
		}
	}
	s.saveProgress(ctx, l.ID)

	if tr.Next != nil {
		if err := s.prepare(tr.Next); err != nil {
			return nil, err
		}
	}
	out.Duration = time.Since(start)

	s.logger.InfoContext(ctx, "attempt evaluated",
		slog.String("lesson", l.ID),
		slog.String("challenge", ch.ID),
		slog.String("status", string(res.Status)),
		slog.String("feedback", fb.Kind.String()),
		slog.Bool("advanced", tr.Advanced),
		slog.Duration("duration", out.Duration),
	)
	s.audit(ctx, out)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveAttempt(s.id, out)
	}
	return out, nil
}

// Close cancels an in-flight attempt, waits for it and destroys the
// sandbox. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closeErr = s.box.Destroy()
		s.logger.Info("session closed")
		if s.cfg.Observer != nil {
			s.cfg.Observer.SessionClosed(s.id)
		}
	})
	return s.closeErr
}

// prepare lays out ch in the sandbox and returns to the root. Callers
// hold s.mu.
func (s *Session) prepare(ch *lesson.Challenge) error {
	if err := s.box.ApplyLayout(ch.Layout); err != nil {
		return fmt.Errorf("preparing challenge %s: %w", ch.ID, err)
	}
	s.cwd = "."
	return nil
}

func (s *Session) saveProgress(ctx context.Context, lessonID string) {
	if s.cfg.Progress == nil {
		return
	}
	if err := s.cfg.Progress.SaveProgress(ctx, s.learner, s.tracker.Status(lessonID)); err != nil {
		s.logger.WarnContext(ctx, "saving progress failed",
			slog.String("lesson", lessonID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) audit(ctx context.Context, o *Outcome) {
	if s.cfg.Auditor == nil {
		return
	}
	event := security.AuditEvent{
		Timestamp:     time.Now().UTC(),
		CorrelationID: newCorrelationID(),
		SessionID:     s.id,
		Learner:       s.learner,
		Lesson:        o.Lesson,
		Challenge:     o.Challenge,
		Command:       o.Command,
		Status:        string(o.Result.Status),
		Feedback:      o.Feedback.Kind.String(),
		Reason:        o.Result.Reason,
		DurationMS:    o.Duration.Milliseconds(),
	}
	if err := s.cfg.Auditor.LogAttempt(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit failed", slog.String("error", err.Error()))
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
