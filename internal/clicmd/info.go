package clicmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <recipe>",
	Short: "Show a recipe's variables and steps without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ref := args[0]

	eng, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	r, err := eng.ResolveAndLoad(context.Background(), ref, engineOptions())
	if err != nil {
		printError("%v", err)
		os.Exit(2)
	}

	info := eng.ShowInfo(r)

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	printInfo("%s %s", info.Name, info.Version)
	if info.Description != "" {
		printInfo("  %s", info.Description)
	}
	printInfo("variables:")
	for _, v := range info.Variables {
		printInfo("  - %s", v)
	}
	printInfo("steps:")
	for _, s := range info.Steps {
		marker := " "
		if s.Parallel {
			marker = "~"
		}
		printInfo("  %s %s (%s)", marker, s.Name, s.Tool)
	}
	return nil
}
