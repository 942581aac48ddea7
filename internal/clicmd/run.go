package clicmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dublyo/reciper/internal/result"
)

var (
	varFlags         []string
	dryRun           bool
	force            bool
	skipPrompts      bool
	maxParallelSteps int
	globalTimeoutMs  int
	workingDir       string
	exampleName      string
)

var runCmd = &cobra.Command{
	Use:   "run <recipe>",
	Short: "Resolve, load, and execute a recipe",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "variable override, name=value (repeatable)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan steps without writing changes")
	runCmd.Flags().BoolVar(&force, "force", false, "overwrite without confirmation")
	runCmd.Flags().BoolVar(&skipPrompts, "skip-prompts", false, "fail on missing required variables instead of prompting")
	runCmd.Flags().IntVar(&maxParallelSteps, "max-parallel-steps", 0, "bound on concurrent steps (0 = recipe/engine default)")
	runCmd.Flags().IntVar(&globalTimeoutMs, "timeout-ms", 0, "recipe-wide timeout in milliseconds (0 = none)")
	runCmd.Flags().StringVar(&workingDir, "working-dir", "", "directory steps run relative to (defaults to recipe settings)")
	runCmd.Flags().StringVar(&exampleName, "example", "", "named example to supply variable defaults from")
}

func runRun(cmd *cobra.Command, args []string) error {
	ref := args[0]

	eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	ctx := context.Background()

	opts := engineOptions()

	r, err := eng.ResolveAndLoad(ctx, ref, opts)
	if err != nil {
		printError("%v", err)
		return err
	}

	overrides, err := parseVarFlags(varFlags)
	if err != nil {
		return err
	}

	resolved, err := eng.ResolveVariables(r, overrides, nil, opts)
	if err != nil {
		printError("%v", err)
		return err
	}

	printInfo("running %s (%d steps)", r.Name, len(r.Steps))

	res, err := eng.Execute(ctx, r, resolved, opts)
	if err != nil {
		printError("%v", err)
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	} else {
		printStepResults(res)
	}

	return exitForStatus(res.Status)
}

func printStepResults(res *result.RecipeResult) {
	for _, sr := range res.Steps {
		switch sr.Status {
		case result.StatusOK:
			printSuccess("%s (%dms)", sr.StepName, sr.DurationMs)
		case result.StatusSkipped:
			printInfo("- %s skipped", sr.StepName)
		case result.StatusFailed:
			printError("%s: %v", sr.StepName, sr.Error)
		case result.StatusTimedOut:
			printError("%s: timed out", sr.StepName)
		}
		for _, w := range sr.Warnings {
			printInfo("  warning: %s", w)
		}
	}
	printInfo("%s: %s (%dms)", res.RecipeName, res.Status, res.DurationMs)
}

// exitForStatus maps a RecipeResult's terminal status to a process exit
// code (spec §6.6: "ok → 0; failed → non-zero distinct from timed_out").
func exitForStatus(status result.Status) error {
	switch status {
	case result.StatusOK, result.StatusSkipped:
		return nil
	case result.StatusTimedOut:
		os.Exit(3)
	default:
		os.Exit(2)
	}
	return nil
}

// progressCallback prints step-started/skipped events as they happen
// when running verbosely; it is a no-op otherwise (the final summary from
// printStepResults covers the non-verbose case).
func progressCallback() result.Callback {
	if !verbose {
		return nil
	}
	return func(ev result.Event) {
		switch ev.Kind {
		case result.EventStepStarted:
			printInfo("-> %s (%s)", ev.StepStarted.StepName, ev.StepStarted.Tool)
		case result.EventStepSkipped:
			printInfo("-- %s skipped: %s", ev.StepSkipped.StepName, ev.StepSkipped.Reason)
		}
	}
}

func parseVarFlags(flags []string) (map[string]any, error) {
	out := make(map[string]any, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", f)
		}
		out[name] = value
	}
	return out, nil
}
