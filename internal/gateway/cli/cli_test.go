package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

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

func run(t *testing.T, input string) string {
	t.Helper()
	var out bytes.Buffer
	g := NewGateway(newSession(t), Config{In: strings.NewReader(input), Out: &out}, nil)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return out.String()
}

func TestREPLSession(t *testing.T) {
	out := run(t, "hint\npwd\nlessons\nsheet\nexplain ls\nexit\n")

	for _, want := range []string{
		"Print the directory you are currently in.",
		"Hint: The command is an abbreviation",
		"[correct]",
		"Added to your cheat sheet: pwd",
		"(2/",
		"[>] looking-around",
		"Print the current working directory",
		"Goodbye",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n---\n%s", want, out)
		}
	}
}

func TestREPLMetaCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"help", "help\n", "show a hint for the current challenge"},
		{"help command", "help pwd\n", "pwd"},
		{"explain usage", "explain\n", "Usage: explain <command>"},
		{"lesson usage", "lesson\n", "Usage: lesson <id>"},
		{"locked lesson", "lesson deleting\n", "deleting"},
		{"unknown lesson", "lesson nope\n", "unknown lesson"},
		{"reset", "reset\n", "back to how the challenge started"},
		{"empty sheet", "sheet\n", "cheat sheet is empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := run(t, tc.input)
			if !strings.Contains(out, tc.want) {
				t.Errorf("output missing %q\n---\n%s", tc.want, out)
			}
		})
	}
}

func TestREPLBlockedCommand(t *testing.T) {
	out := run(t, "sudo ls\n")
	if !strings.Contains(out, "[blocked]") {
		t.Errorf("expected blocked feedback\n---\n%s", out)
	}
	if !strings.Contains(out, `Stuck? Type "hint".`) {
		t.Errorf("expected hint nudge\n---\n%s", out)
	}
}

func TestREPLEndOfInput(t *testing.T) {
	out := run(t, "")
	if !strings.Contains(out, "Print the directory you are currently in.") {
		t.Errorf("first challenge not shown\n---\n%s", out)
	}
}

func TestStopEndsREPL(t *testing.T) {
	var out bytes.Buffer
	g := NewGateway(newSession(t), Config{In: strings.NewReader("pwd\n"), Out: &out}, nil)
	if err := g.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Second Stop must not panic.
	if err := g.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(out.String(), "Shutting down.") {
		t.Errorf("expected shutdown message\n---\n%s", out.String())
	}
	if strings.Contains(out.String(), "[correct]") {
		t.Error("input was processed after Stop")
	}
}

func TestFormatOutcome(t *testing.T) {
	entry := ledger.Entry{Command: "ls", Description: "List the contents of a directory"}
	tests := []struct {
		name    string
		outcome *session.Outcome
		want    []string
		absent  []string
	}{
		{
			name: "correct with output",
			outcome: &session.Outcome{
				Result:   &executor.Result{Steps: []executor.Step{{Command: "ls", Stdout: "notes.txt\n"}}},
				Feedback: validator.Feedback{Kind: validator.KindCorrect, Message: "Well done."},
				Transition: lesson.Transition{Advanced: true},
				Mastered: &entry,
			},
			want:   []string{"notes.txt\n", "[correct] Well done.", "Added to your cheat sheet: ls"},
			absent: []string{"Stuck?"},
		},
		{
			name: "incorrect reveals hint",
			outcome: &session.Outcome{
				Feedback: validator.Feedback{
					Kind:            validator.KindIncorrect,
					Message:         "Not quite.",
					AttemptedEffect: "listed the directory",
					Suggestion:      "pwd",
				},
				Transition: lesson.Transition{RevealHint: true},
			},
			want: []string{"[not quite] Not quite.", "What that did: listed the directory", "Try: pwd", "Stuck?"},
		},
		{
			name: "acceptable",
			outcome: &session.Outcome{
				Feedback:   validator.Feedback{Kind: validator.KindAcceptable, Message: "That works."},
				Transition: lesson.Transition{Advanced: true},
			},
			want: []string{"[works] That works."},
		},
		{
			name: "blocked message",
			outcome: &session.Outcome{
				Result:   &executor.Result{Steps: []executor.Step{{Command: "sudo", Message: "sudo is not available here"}}},
				Feedback: validator.Feedback{Kind: validator.KindBlocked, Message: "Blocked."},
			},
			want: []string{"sudo is not available here\n", "[blocked] Blocked."},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatOutcome(tc.outcome)
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in\n%s", w, got)
				}
			}
			for _, a := range tc.absent {
				if strings.Contains(got, a) {
					t.Errorf("unexpected %q in\n%s", a, got)
				}
			}
		})
	}
}

func TestFormatLessons(t *testing.T) {
	catalog, err := lesson.Builtin(nil)
	if err != nil {
		t.Fatal(err)
	}
	tracker := lesson.NewTracker(catalog)
	if _, err := tracker.Enter("looking-around"); err != nil {
		t.Fatalf("Enter: %v", err)
	}

	got := FormatLessons(tracker)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != catalog.Len() {
		t.Fatalf("got %d lines, want %d\n%s", len(lines), catalog.Len(), got)
	}
	if !strings.HasPrefix(lines[0], "[>] looking-around") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(got, "[-]") || !strings.Contains(got, "(after ") {
		t.Errorf("locked lessons not marked\n%s", got)
	}
}

func TestFormatChallenge(t *testing.T) {
	pos := session.Position{
		Lesson:    &lesson.Lesson{Title: "Looking Around", Description: "Look first."},
		Challenge: &lesson.Challenge{Prompt: "Print the directory.", GUIEquivalent: "The address bar."},
		Index:     1,
		Total:     4,
	}
	got := FormatChallenge(pos)
	for _, w := range []string{"== Looking Around (1/4) ==", "Look first.", "Print the directory.", "(In a file manager: The address bar.)"} {
		if !strings.Contains(got, w) {
			t.Errorf("missing %q in\n%s", w, got)
		}
	}
	pos.Index = 2
	if strings.Contains(FormatChallenge(pos), "Look first.") {
		t.Error("description repeated after the first challenge")
	}
}
