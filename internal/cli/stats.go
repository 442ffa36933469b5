package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display stored row counts and recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsRuns <= 0 {
			return fmt.Errorf("--runs must be greater than zero")
		}
		return getApp().Stats(cmd.Context(), statsRuns)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsRuns, "runs", 10, "Number of recent runs to display")
}
