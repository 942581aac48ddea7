package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("reciper %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return nil
	},
}
