// Package cli implements the interactive terminal gateway: a REPL that
// walks one learner through the curriculum inside a single session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jkaninda/shellguide/internal/explain"
	"github.com/jkaninda/shellguide/internal/gateway"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/session"
	"github.com/jkaninda/shellguide/internal/validator"
)

// Config configures the terminal gateway.
type Config struct {
	// LessonID is entered first. Empty picks the next unlocked lesson.
	LessonID string
	Prompt   string    // Default: "$ ".
	In       io.Reader // Default: os.Stdin.
	Out      io.Writer // Default: os.Stdout.
}

// Gateway is the interactive command-line interface.
type Gateway struct {
	sess   *session.Session
	cfg    Config
	out    io.Writer
	logger *slog.Logger
	done   chan struct{} // closed by Stop to signal shutdown
}

// NewGateway creates a CLI gateway driving sess. The caller owns sess.
func NewGateway(sess *session.Session, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "$ "
	}
	return &Gateway{
		sess:   sess,
		cfg:    cfg,
		out:    cfg.Out,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the REPL. Blocks until ctx is cancelled, Stop is called,
// input ends, the learner types "exit", or every lesson is complete.
func (g *Gateway) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(g.cfg.In)

	fmt.Fprintln(g.out, "shellguide: learn the command line in a safe sandbox.")
	fmt.Fprintln(g.out, `Type "help" for the list of commands.`)
	fmt.Fprintln(g.out)

	if finished, err := g.enter(ctx, g.cfg.LessonID); err != nil || finished {
		return err
	}

	for {
		fmt.Fprintf(g.out, "[%s] %s", g.sess.Cwd(), g.cfg.Prompt)

		// Check for context cancellation or Stop signal between prompts.
		select {
		case <-ctx.Done():
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		case <-g.done:
			fmt.Fprintln(g.out, "\nShutting down.")
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := g.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(g.out)
	return nil
}

// Stop signals the REPL to shut down.
func (g *Gateway) Stop(_ context.Context) error {
	select {
	case <-g.done:
		// Already closed.
	default:
		close(g.done)
	}
	return nil
}

// handle processes one input line. It reports whether the REPL should end.
func (g *Gateway) handle(ctx context.Context, line string) (bool, error) {
	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch word {
	case "exit", "quit":
		fmt.Fprintln(g.out, "Goodbye. Your progress is saved.")
		return true, nil
	case "help":
		if rest != "" {
			g.explain(rest)
			return false, nil
		}
		fmt.Fprint(g.out, helpText)
		return false, nil
	case "explain":
		g.explain(rest)
		return false, nil
	case "hint":
		hint, err := g.sess.Hint()
		if err != nil {
			fmt.Fprintf(g.out, "No hint available: %v\n", err)
			return false, nil
		}
		fmt.Fprintf(g.out, "Hint: %s\n", hint)
		return false, nil
	case "lessons":
		fmt.Fprint(g.out, FormatLessons(g.sess.Tracker()))
		return false, nil
	case "sheet", "cheatsheet":
		fmt.Fprint(g.out, g.sess.CheatSheet().Format())
		return false, nil
	case "reset":
		if err := g.sess.Reset(ctx); err != nil {
			fmt.Fprintf(g.out, "Reset failed: %v\n", err)
			return false, nil
		}
		fmt.Fprintln(g.out, "The sandbox is back to how the challenge started.")
		return false, nil
	case "lesson":
		if rest == "" {
			fmt.Fprintln(g.out, "Usage: lesson <id>")
			return false, nil
		}
		return g.enter(ctx, rest)
	}

	out, err := g.sess.Submit(ctx, line)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return true, nil
		}
		g.logger.ErrorContext(ctx, "attempt failed", slog.String("error", err.Error()))
		fmt.Fprintf(g.out, "Error: %v\n", err)
		return false, nil
	}

	fmt.Fprint(g.out, FormatOutcome(out))

	switch {
	case out.Transition.LessonComplete:
		fmt.Fprintf(g.out, "\nLesson complete: %s\n\n", out.Lesson)
		return g.enter(ctx, "")
	case out.Transition.Advanced:
		if pos, ok := g.sess.Current(); ok {
			fmt.Fprintln(g.out)
			fmt.Fprint(g.out, FormatChallenge(pos))
		}
	}
	return false, nil
}

// enter starts a lesson and prints its first challenge. It reports true
// when there is nothing left to learn.
func (g *Gateway) enter(ctx context.Context, lessonID string) (bool, error) {
	_, err := g.sess.Start(ctx, lessonID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNoChallenge):
		fmt.Fprintln(g.out, "You have completed every lesson. Type \"shellguide cheatsheet\" to review what you learned.")
		return true, nil
	case errors.Is(err, session.ErrClosed):
		return true, nil
	default:
		var locked *lesson.LessonLockedError
		if errors.As(err, &locked) || errors.Is(err, lesson.ErrUnknownLesson) {
			fmt.Fprintf(g.out, "%v\n", err)
			return false, nil
		}
		return true, err
	}
	if pos, ok := g.sess.Current(); ok {
		fmt.Fprint(g.out, FormatChallenge(pos))
	}
	return false, nil
}

func (g *Gateway) explain(name string) {
	if name == "" {
		fmt.Fprintln(g.out, "Usage: explain <command>")
		return
	}
	c, err := explain.Lookup(name)
	if err != nil {
		fmt.Fprintf(g.out, "%v\n", err)
		return
	}
	fmt.Fprint(g.out, c.Format())
}

const helpText = `Type shell commands to solve the current challenge. Other commands:
  hint             show a hint for the current challenge
  reset            restore the sandbox to the start of the challenge
  lessons          list lessons and your progress
  lesson <id>      switch to another unlocked lesson
  sheet            show your cheat sheet
  explain <cmd>    describe a command and its common flags
  exit             save and quit
`

// FormatChallenge renders the active challenge.
func FormatChallenge(pos session.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s (%d/%d) ==\n", pos.Lesson.Title, pos.Index, pos.Total)
	if pos.Index == 1 && pos.Lesson.Description != "" {
		b.WriteString(strings.TrimSpace(pos.Lesson.Description))
		b.WriteString("\n\n")
	}
	b.WriteString(pos.Challenge.Prompt)
	b.WriteByte('\n')
	if pos.Challenge.GUIEquivalent != "" {
		fmt.Fprintf(&b, "(In a file manager: %s)\n", pos.Challenge.GUIEquivalent)
	}
	return b.String()
}

// FormatOutcome renders command output followed by the feedback.
func FormatOutcome(o *session.Outcome) string {
	var b strings.Builder
	if o.Result != nil {
		for _, step := range o.Result.Steps {
			b.WriteString(step.Stdout)
			b.WriteString(step.Stderr)
			if step.Message != "" {
				b.WriteString(step.Message)
				b.WriteByte('\n')
			}
		}
	}

	fb := o.Feedback
	fmt.Fprintf(&b, "%s %s\n", badge(fb.Kind), fb.Message)
	if fb.AttemptedEffect != "" {
		fmt.Fprintf(&b, "  What that did: %s\n", fb.AttemptedEffect)
	}
	if fb.Explanation != "" {
		fmt.Fprintf(&b, "  %s\n", strings.TrimSpace(fb.Explanation))
	}
	if fb.Suggestion != "" {
		fmt.Fprintf(&b, "  Try: %s\n", fb.Suggestion)
	}
	if o.Transition.RevealHint && !fb.Advances() {
		b.WriteString("  Stuck? Type \"hint\".\n")
	}
	if o.Mastered != nil {
		fmt.Fprintf(&b, "  Added to your cheat sheet: %s\n", o.Mastered.Command)
	}
	return b.String()
}

func badge(k validator.Kind) string {
	switch k {
	case validator.KindCorrect:
		return "[correct]"
	case validator.KindAcceptable:
		return "[works]"
	case validator.KindBlocked:
		return "[blocked]"
	default:
		return "[not quite]"
	}
}

// FormatLessons lists the catalog with the learner's progress.
func FormatLessons(t *lesson.Tracker) string {
	var b strings.Builder
	for _, l := range t.Catalog().Lessons() {
		mark := "[ ]"
		switch {
		case t.State(l.ID) == lesson.StateComplete:
			mark = "[x]"
		case t.State(l.ID) == lesson.StateInProgress:
			mark = "[>]"
		case !t.Unlocked(l.ID):
			mark = "[-]"
		}
		fmt.Fprintf(&b, "%s %-20s %s", mark, l.ID, l.Title)
		if !t.Unlocked(l.ID) {
			fmt.Fprintf(&b, " (after %s)", l.Requires)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var _ gateway.Gateway = (*Gateway)(nil)
