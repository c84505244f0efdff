package session

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/security"
	"github.com/jkaninda/shellguide/internal/validator"
)

func requireTools(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

type memProgress struct {
	mu       sync.Mutex
	statuses map[string]lesson.Status
}

func completed(ids ...string) *memProgress {
	p := &memProgress{statuses: map[string]lesson.Status{}}
	for _, id := range ids {
		p.statuses[id] = lesson.Status{LessonID: id, State: lesson.StateComplete}
	}
	return p
}

func (p *memProgress) SaveProgress(_ context.Context, _ string, s lesson.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[s.LessonID] = s
	return nil
}

func (p *memProgress) LoadProgress(context.Context, string) ([]lesson.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]lesson.Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, s)
	}
	return out, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *memLedger) SaveEntry(_ context.Context, _ string, e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) LoadEntries(context.Context, string) ([]ledger.Entry, error) {
	return nil, nil
}

type memAuditor struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (a *memAuditor) LogAttempt(_ context.Context, e security.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func builtin(t *testing.T) *lesson.Catalog {
	t.Helper()
	c, err := lesson.Builtin(nil)
	if err != nil {
		t.Fatalf("loading curriculum: %v", err)
	}
	return c
}

func newSession(t *testing.T, progress lesson.ProgressStore) (*Session, Config) {
	t.Helper()
	cfg := Config{
		SandboxDir: t.TempDir(),
		Catalog:    builtin(t),
		Runner:     executor.New(executor.Config{}, nil),
		Progress:   progress,
		Ledger:     &memLedger{},
		Auditor:    &memAuditor{},
	}
	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, cfg
}

func TestNewValidatesConfig(t *testing.T) {
	runner := executor.New(executor.Config{}, nil)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no catalog", Config{SandboxDir: t.TempDir(), Runner: runner}},
		{"no runner", Config{SandboxDir: t.TempDir(), Catalog: builtin(t)}},
		{"relative dir", Config{SandboxDir: "sandbox", Catalog: builtin(t), Runner: runner}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(context.Background(), tc.cfg, nil); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSubmitCorrectAdvances(t *testing.T) {
	requireTools(t, "rm", "rmdir")
	s, cfg := newSession(t, completed("looking-around", "navigation", "creating", "renaming-moving", "copying"))
	ctx := context.Background()

	ch, err := s.Start(ctx, "deleting")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ch.ID != "remove-file" {
		t.Fatalf("first challenge = %s", ch.ID)
	}

	out, err := s.Submit(ctx, "rm notes.txt")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Feedback.Kind != validator.KindCorrect {
		t.Fatalf("feedback = %s (%s), want CORRECT", out.Feedback.Kind, out.Feedback.Explanation)
	}
	if !out.Transition.Advanced || out.Transition.Next == nil || out.Transition.Next.ID != "remove-empty-directory" {
		t.Errorf("transition = %+v", out.Transition)
	}
	if out.State.HasFile("notes.txt") || !out.State.HasFile("important.txt") {
		t.Errorf("state after = %v", out.State.Files())
	}
	if out.Mastered == nil || !s.CheatSheet().Has("rm <file>") {
		t.Error("rm <file> should be on the cheat sheet")
	}
	if got := cfg.Ledger.(*memLedger).entries; len(got) != 1 || got[0].LessonID != "deleting" {
		t.Errorf("persisted ledger = %+v", got)
	}

	// The next challenge's layout is in place.
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !snap.HasDir("dist") {
		t.Errorf("next layout not applied: %v", snap.Dirs())
	}

	auditor := cfg.Auditor.(*memAuditor)
	if len(auditor.events) != 1 || auditor.events[0].Feedback != "CORRECT" || auditor.events[0].SessionID != s.ID() {
		t.Errorf("audit events = %+v", auditor.events)
	}
}

func TestSubmitKnownMistake(t *testing.T) {
	requireTools(t, "cp")
	progress := completed("looking-around", "navigation", "creating", "renaming-moving")
	progress.statuses["copying"] = lesson.Status{LessonID: "copying", State: lesson.StateInProgress, Index: 2}
	s, _ := newSession(t, progress)
	ctx := context.Background()

	ch, err := s.Start(ctx, "copying")
	if err != nil {
		t.Fatal(err)
	}
	if ch.ID != "copy-directory" {
		t.Fatalf("challenge = %s, want copy-directory", ch.ID)
	}

	out, err := s.Submit(ctx, "cp project backup")
	if err != nil {
		t.Fatal(err)
	}
	if out.Feedback.Kind != validator.KindIncorrect {
		t.Fatalf("feedback = %s, want INCORRECT", out.Feedback.Kind)
	}
	if out.Feedback.Suggestion != "cp -r project backup" {
		t.Errorf("suggestion = %q", out.Feedback.Suggestion)
	}
	if out.Transition.Advanced || !out.Transition.RevealHint {
		t.Errorf("transition = %+v", out.Transition)
	}
	if pos, ok := s.Current(); !ok || pos.Challenge.ID != "copy-directory" || !pos.HintShown {
		t.Errorf("position = %+v", pos)
	}

	out, err = s.Submit(ctx, "cp -r project backup")
	if err != nil {
		t.Fatal(err)
	}
	if out.Feedback.Kind != validator.KindCorrect || !out.Transition.LessonComplete {
		t.Errorf("second attempt: %s %+v", out.Feedback.Kind, out.Transition)
	}
	if progress.statuses["copying"].State != lesson.StateComplete {
		t.Errorf("stored state = %s", progress.statuses["copying"].State)
	}
}

func TestSubmitChainChangesDirectory(t *testing.T) {
	requireTools(t, "mkdir")
	s, _ := newSession(t, completed("looking-around", "navigation", "creating", "renaming-moving", "copying", "deleting"))
	ctx := context.Background()

	if _, err := s.Start(ctx, "combining-commands"); err != nil {
		t.Fatal(err)
	}
	out, err := s.Submit(ctx, "mkdir build && cd build")
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Result.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(out.Result.Steps))
	}
	if !out.State.HasDir("build") || out.Result.Cwd != "build" {
		t.Errorf("dir build missing or cwd = %q", out.Result.Cwd)
	}
	if out.Feedback.Kind != validator.KindCorrect {
		t.Errorf("feedback = %s", out.Feedback.Kind)
	}
	// The next challenge starts back at the root.
	if s.Cwd() != "." {
		t.Errorf("Cwd() = %q after advancing", s.Cwd())
	}
}

func TestSubmitBlockedLeavesSandboxAlone(t *testing.T) {
	s, _ := newSession(t, nil)
	ctx := context.Background()
	if _, err := s.Start(ctx, ""); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Snapshot()

	out, err := s.Submit(ctx, "ls; rm -rf /")
	if err != nil {
		t.Fatal(err)
	}
	if out.Feedback.Kind != validator.KindBlocked || out.Result.Status != executor.StatusBlocked {
		t.Fatalf("got %s/%s, want BLOCKED", out.Feedback.Kind, out.Result.Status)
	}
	if len(out.Result.Steps) != 0 {
		t.Errorf("blocked input ran %d steps", len(out.Result.Steps))
	}
	if !out.State.Equal(before) {
		t.Error("sandbox changed")
	}

	var blocked *executor.BlockedOperatorError
	if !errors.As(out.Result.Err, &blocked) || blocked.Operator != ";" {
		t.Errorf("Err = %v", out.Result.Err)
	}
}

func TestSubmitWithoutLesson(t *testing.T) {
	s, _ := newSession(t, nil)
	if _, err := s.Submit(context.Background(), "ls"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("Submit = %v, want ErrNoChallenge", err)
	}
	if _, err := s.Submit(context.Background(), "   "); !errors.Is(err, executor.ErrEmptyCommand) {
		t.Errorf("blank Submit = %v, want ErrEmptyCommand", err)
	}
	if _, err := s.Hint(); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("Hint = %v, want ErrNoChallenge", err)
	}
}

func TestStartLocked(t *testing.T) {
	s, _ := newSession(t, nil)
	var locked *lesson.LessonLockedError
	if _, err := s.Start(context.Background(), "deleting"); !errors.As(err, &locked) {
		t.Errorf("Start(deleting) = %v, want LessonLockedError", err)
	}
	if _, err := s.Start(context.Background(), "nope"); !errors.Is(err, lesson.ErrUnknownLesson) {
		t.Errorf("Start(nope) = %v, want ErrUnknownLesson", err)
	}
}

func TestHintAndReset(t *testing.T) {
	requireTools(t, "mkdir")
	s, _ := newSession(t, completed("looking-around", "navigation"))
	ctx := context.Background()
	if _, err := s.Start(ctx, "creating"); err != nil {
		t.Fatal(err)
	}
	hint, err := s.Hint()
	if err != nil || hint == "" {
		t.Fatalf("Hint = %q, %v", hint, err)
	}

	out, err := s.Submit(ctx, "mkdir junk")
	if err != nil {
		t.Fatal(err)
	}
	if out.Feedback.Kind != validator.KindIncorrect {
		t.Fatalf("feedback = %s", out.Feedback.Kind)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Snapshot()
	if snap.HasDir("junk") || !snap.HasFile("notes.txt") {
		t.Errorf("Reset did not restore the layout: files %v dirs %v", snap.Files(), snap.Dirs())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := newSession(t, nil)
	root := s.Root().String()
	if _, err := s.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("root still exists: %v", err)
	}
	if _, err := s.Submit(context.Background(), "ls"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Start(context.Background(), ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestRunClosesSession(t *testing.T) {
	cfg := Config{
		SandboxDir: t.TempDir(),
		Catalog:    builtin(t),
		Runner:     executor.New(executor.Config{}, nil),
	}
	var kept *Session
	err := Run(context.Background(), cfg, nil, func(s *Session) error {
		kept = s
		_, err := s.Start(context.Background(), "looking-around")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !kept.Closed() {
		t.Error("Run should close the session")
	}
}

func TestRegistryAndReaper(t *testing.T) {
	base := Config{
		SandboxDir: t.TempDir(),
		Catalog:    builtin(t),
		Runner:     executor.New(executor.Config{}, nil),
	}
	reg := NewRegistry(base, 2, nil)
	ctx := context.Background()

	a, err := reg.Create(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Create(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if b.Learner() != DefaultLearner {
		t.Errorf("Learner() = %q", b.Learner())
	}
	if _, err := reg.Create(ctx, "grace"); !errors.Is(err, ErrLimitReached) {
		t.Errorf("third Create = %v, want ErrLimitReached", err)
	}
	if got, _ := reg.Get(a.ID()); got != a {
		t.Error("Get returned a different session")
	}

	reaper, err := NewReaper(reg, time.Minute, "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := reaper.Sweep(ctx); n != 0 {
		t.Errorf("fresh sessions reaped: %d", n)
	}
	reaper.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := reaper.Sweep(ctx); n != 2 {
		t.Errorf("reaped %d sessions, want 2", n)
	}
	if reg.Len() != 0 || !a.Closed() || !b.Closed() {
		t.Error("idle sessions should be closed and removed")
	}
	if _, err := reg.Get(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after reap = %v", err)
	}
}

func TestNewReaperRejectsBadSchedule(t *testing.T) {
	if _, err := NewReaper(NewRegistry(Config{}, 0, nil), time.Minute, "every minute", nil, nil); err == nil {
		t.Error("expected a schedule parse error")
	}
	if _, err := NewReaper(NewRegistry(Config{}, 0, nil), 0, "", nil, nil); err == nil {
		t.Error("expected an idle timeout error")
	}
}
