package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/session"
	"github.com/jkaninda/shellguide/internal/validator"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	catalog, err := lesson.Builtin(nil)
	if err != nil {
		t.Fatalf("loading curriculum: %v", err)
	}
	s, err := session.New(context.Background(), session.Config{
		Learner:    "alice",
		SandboxDir: t.TempDir(),
		Catalog:    catalog,
		Runner:     executor.New(executor.Config{}, nil),
	}, nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionResponse(t *testing.T) {
	s := newSession(t)

	resp := NewSession(s)
	if resp.ID != s.ID() || resp.Learner != "alice" {
		t.Errorf("identity = %q/%q", resp.ID, resp.Learner)
	}
	if resp.Challenge != nil {
		t.Errorf("expected no challenge before Start, got %+v", resp.Challenge)
	}
	if resp.Finished {
		t.Error("fresh session reported finished")
	}

	if _, err := s.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp = NewSession(s)
	if resp.Challenge == nil {
		t.Fatal("expected active challenge")
	}
	if resp.Challenge.Lesson != "looking-around" || resp.Challenge.ID != "where-am-i" {
		t.Errorf("challenge = %s/%s", resp.Challenge.Lesson, resp.Challenge.ID)
	}
	if resp.Challenge.Index != 1 || resp.Challenge.Total < 2 {
		t.Errorf("position = %d/%d", resp.Challenge.Index, resp.Challenge.Total)
	}
	if resp.Cwd != "." {
		t.Errorf("cwd = %q, want .", resp.Cwd)
	}
}

func TestOutcomeResponseFromAttempt(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()
	if _, err := s.Start(ctx, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := s.Submit(ctx, "sudo pwd")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	resp := NewOutcome(out, s)
	if resp.Feedback.Kind != validator.KindBlocked.String() {
		t.Errorf("kind = %q", resp.Feedback.Kind)
	}
	if resp.Advanced || resp.Next != nil {
		t.Error("blocked attempt advanced")
	}
	if resp.Hint == "" {
		t.Error("hint not revealed after a failed attempt")
	}

	out, err = s.Submit(ctx, "pwd")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	resp = NewOutcome(out, s)
	if resp.Feedback.Kind != "CORRECT" {
		t.Errorf("kind = %q", resp.Feedback.Kind)
	}
	if resp.Status != string(executor.StatusSuccess) || len(resp.Steps) != 1 {
		t.Errorf("status = %q, steps = %d", resp.Status, len(resp.Steps))
	}
	if resp.Next == nil || resp.Next.Index != 2 {
		t.Errorf("next = %+v", resp.Next)
	}
	if resp.Mastered == nil || resp.Mastered.Command != "pwd" {
		t.Errorf("mastered = %+v", resp.Mastered)
	}
	if resp.Hint != "" {
		t.Errorf("hint leaked on success: %q", resp.Hint)
	}
}

func TestOutcomeResponseWithoutSession(t *testing.T) {
	out := &session.Outcome{
		Command: "ls",
		Result: &executor.Result{
			Status: executor.StatusFailure,
			Reason: "ls failed",
			Cwd:    "docs",
			Steps:  []executor.Step{{Command: "ls", Args: []string{"missing"}, Status: executor.StatusFailure, ExitCode: 2, Stderr: "no such file"}},
		},
		Feedback:   validator.Feedback{Kind: validator.KindIncorrect, Message: "Not quite."},
		Transition: lesson.Transition{RevealHint: true, Attempts: 3},
		Mastered:   &ledger.Entry{Command: "ls"},
		Duration:   1500 * time.Millisecond,
	}
	resp := NewOutcome(out, nil)
	if resp.Status != "failure" || resp.Reason != "ls failed" || resp.Cwd != "docs" {
		t.Errorf("result fields = %q/%q/%q", resp.Status, resp.Reason, resp.Cwd)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].ExitCode != 2 || resp.Steps[0].Args[0] != "missing" {
		t.Errorf("steps = %+v", resp.Steps)
	}
	if resp.Feedback.Kind != "INCORRECT" || resp.Attempts != 3 {
		t.Errorf("feedback = %+v, attempts = %d", resp.Feedback, resp.Attempts)
	}
	if resp.DurationMS != 1500 {
		t.Errorf("duration = %d", resp.DurationMS)
	}
	if resp.Hint != "" {
		t.Error("hint set without a session")
	}
}

func TestLessonResponses(t *testing.T) {
	catalog, err := lesson.Builtin(nil)
	if err != nil {
		t.Fatal(err)
	}

	resp := NewLessons(catalog, nil)
	if len(resp) != catalog.Len() {
		t.Fatalf("got %d lessons, want %d", len(resp), catalog.Len())
	}
	if !resp[0].Unlocked || resp[0].State != "not_started" {
		t.Errorf("first lesson = %+v", resp[0])
	}
	if resp[1].Unlocked {
		t.Errorf("second lesson unlocked without progress: %+v", resp[1])
	}

	tracker := lesson.NewTracker(catalog)
	if _, err := tracker.Enter(resp[0].ID); err != nil {
		t.Fatal(err)
	}
	resp = NewLessons(catalog, tracker)
	if resp[0].State != "in_progress" {
		t.Errorf("state = %q, want in_progress", resp[0].State)
	}
	if resp[0].Challenges == 0 {
		t.Error("challenge count missing")
	}
}
