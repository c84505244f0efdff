package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/explain"
	"github.com/jkaninda/shellguide/internal/gateway/cli"
	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/sandbox"
	"github.com/jkaninda/shellguide/internal/session"
	"github.com/jkaninda/shellguide/internal/validator"
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List lessons and your progress",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		sc, err := initShared(cfg, logger)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		tracker, err := sc.restoreTracker(context.Background(), cfg.LearnerID())
		if err != nil {
			return err
		}
		fmt.Print(cli.FormatLessons(tracker))
		return nil
	},
}

var tryChallenge string

var tryCmd = &cobra.Command{
	Use:   "try <command>",
	Short: "Run one command in a scratch sandbox",
	Long: `Run a single command line in a throwaway sandbox. With --challenge the
sandbox is seeded with that challenge's files and the attempt is checked
against its goal. Nothing is recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runTry,
}

func init() {
	tryCmd.Flags().StringVar(&tryChallenge, "challenge", "", "seed the sandbox from this challenge and check the attempt")
}

func runTry(_ *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var l *lesson.Lesson
	var ch *lesson.Challenge
	if tryChallenge != "" {
		if l, ch, err = findChallenge(sc.Catalog, tryChallenge); err != nil {
			return err
		}
	}

	box, err := sandbox.Create(sc.Workspace.ScratchDir(), "try-"+uuid.NewString()[:8], logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := box.Destroy(); err != nil {
			logger.Warn("removing scratch sandbox", slog.String("error", err.Error()))
		}
	}()

	req := executor.Request{
		Line:      args[0],
		Root:      box.Root(),
		Operators: executor.Operators(executor.OpAnd),
	}
	if ch != nil {
		if err := box.ApplyLayout(ch.Layout); err != nil {
			return fmt.Errorf("seeding sandbox: %w", err)
		}
		req.Operators = ch.Operators()
	}

	before, err := box.Snapshot()
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := sc.Runner.Run(ctx, req)
	if err != nil {
		return err
	}

	if ch == nil {
		printResult(res)
		return nil
	}

	after, err := box.Snapshot()
	if err != nil {
		return err
	}
	fb := ch.Validator.Evaluate(validator.Attempt{
		Command: args[0],
		Before:  before,
		After:   after,
		Result:  res,
	})
	fmt.Print(cli.FormatOutcome(&session.Outcome{
		Command:   args[0],
		Lesson:    l.ID,
		Challenge: ch.ID,
		Result:    res,
		Feedback:  fb,
		Duration:  time.Since(start),
	}))
	return nil
}

func printResult(res *executor.Result) {
	for _, step := range res.Steps {
		fmt.Fprint(os.Stdout, step.Stdout)
		fmt.Fprint(os.Stderr, step.Stderr)
		if step.Message != "" {
			fmt.Fprintln(os.Stderr, step.Message)
		}
	}
	if !res.Succeeded() && res.Reason != "" {
		fmt.Fprintf(os.Stderr, "%s: %s\n", res.Status, res.Reason)
	}
}

// findChallenge looks a challenge up by ID across all lessons.
func findChallenge(c *lesson.Catalog, id string) (*lesson.Lesson, *lesson.Challenge, error) {
	for _, l := range c.Lessons() {
		for _, ch := range l.Challenges {
			if ch.ID == id {
				return l, ch, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("unknown challenge %q", id)
}

var explainCmd = &cobra.Command{
	Use:   "explain [command]",
	Short: "Explain a command and its common flags",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, c := range explain.Commands() {
				fmt.Printf("%-8s %s\n", c.Name, c.Description)
			}
			return nil
		}
		c, err := explain.Lookup(args[0])
		if err != nil {
			return err
		}
		fmt.Print(c.Format())
		return nil
	},
}

var cheatsheetCmd = &cobra.Command{
	Use:   "cheatsheet",
	Short: "Print the commands you have mastered",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		sc, err := initShared(cfg, logger)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		if sc.Store == nil {
			return errors.New("cheat sheet needs storage (storage.driver is none)")
		}
		sheet, err := ledger.Load(context.Background(), sc.Store.Ledger(), cfg.LearnerID())
		if err != nil {
			return err
		}
		if sheet.Len() == 0 {
			fmt.Println("Nothing mastered yet. Run `shellguide teach` to start.")
			return nil
		}
		fmt.Print(sheet.Format())
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove sandboxes left behind by interrupted sessions",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ws, err := initWorkspace(cfg)
		if err != nil {
			return err
		}
		sandboxes, err := ws.CleanSandbox()
		if err != nil {
			return err
		}
		scratch, err := ws.CleanScratch()
		if err != nil {
			return err
		}
		logger.Debug("workspace cleaned", slog.String("root", ws.Root))
		fmt.Printf("Removed %d sandbox(es) and %d scratch dir(s).\n", sandboxes, scratch)
		return nil
	},
}
