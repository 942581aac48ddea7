package clicmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <recipe>",
	Short: "Check a recipe for structural and semantic problems without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	problems := eng.Validate(r)

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(problems)
	}

	if len(problems) == 0 {
		printSuccess("%s: no problems found", r.Name)
		return nil
	}

	for _, p := range problems {
		printError("[%s] %s%s", p.Code, p.Message, suffixPath(p.Path))
	}
	os.Exit(2)
	return nil
}

func suffixPath(path string) string {
	if path == "" {
		return ""
	}
	return " (" + path + ")"
}
