package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguide/internal/gateway/cli"
	"github.com/jkaninda/shellguide/internal/session"
)

var teachLesson string

var teachCmd = &cobra.Command{
	Use:   "teach",
	Short: "Start the interactive lessons in this terminal",
	RunE:  runTeach,
}

func init() {
	teachCmd.Flags().StringVar(&teachLesson, "lesson", "", "lesson to start with")
}

// runTeach opens one session for the configured learner and drives it
// from stdin until the learner exits or finishes the curriculum.
func runTeach(_ *cobra.Command, _ []string) error {
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

	learner := cfg.LearnerID()
	logger.Debug("starting terminal session", slog.String("learner", learner))

	return session.Run(ctx, sc.sessionConfig(learner), logger, func(sess *session.Session) error {
		gw := cli.NewGateway(sess, cli.Config{
			LessonID: teachLesson,
			Prompt:   cfg.Gateways.CLI.PromptText(),
		}, logger)
		return gw.Start(ctx)
	})
}
