// shellguide teaches the command line in a disposable sandbox.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguide/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shellguide",
	Short: "shellguide teaches the command line, one challenge at a time.",
	Long: `shellguide is an interactive shell tutor. Every learner works in a
confined sandbox directory where commands from a fixed allowlist are run,
checked against the challenge goal and explained.

Run without a subcommand to start the interactive lessons.`,
	RunE:          runTeach, // Default to the interactive terminal.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.Flags().StringVar(&teachLesson, "lesson", "", "lesson to start with")
	rootCmd.AddCommand(teachCmd, serveCmd, lessonsCmd, tryCmd, explainCmd, cheatsheetCmd, cleanCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
