// Package clicmd provides the command-line interface for reciper, the
// recipe engine's CLI driver (spec §6.6: "the engine returns structured
// results; it never exits the process itself" — this package is the one
// place that maps a RecipeResult to an exit code). It contains no
// scheduling or resolution logic of its own; every command is a thin
// wrapper over internal/engine.
package clicmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dublyo/reciper/internal/config"
	"github.com/dublyo/reciper/internal/logging"
)

var (
	// Version information (set at build time).
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose bool
	quiet   bool
	jsonOut bool

	cfg *config.Config
	log logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reciper <recipe> [flags]",
	Short: "Declarative recipe engine",
	Long: `reciper runs declarative recipe documents: typed variables, a step
DAG, and four built-in tools (template, action, codemod, recipe).

Examples:
  # Run a local recipe
  reciper run ./my-recipe.yml --var name=Button

  # Validate a recipe without running it
  reciper validate ./my-recipe.yml

  # Inspect a recipe's steps and variables
  reciper info ./my-recipe.yml`,
	SilenceUsage: true,
}

// Execute runs the CLI, exiting the process with the code the selected
// command returns (spec §6.6's caller-side exit-code mapping).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output machine-readable JSON")

	cobra.OnInitialize(func() {
		loaded, err := config.Load()
		if err != nil {
			loaded = config.DefaultConfig()
		}
		cfg = loaded

		level := zerolog.InfoLevel
		switch {
		case quiet:
			level = zerolog.ErrorLevel
		case verbose:
			level = zerolog.DebugLevel
		}
		log = logging.NewConsole(level)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(versionCmd)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("✓ "+format+"\n", args...)
	}
}
