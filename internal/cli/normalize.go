package cli

import (
	"github.com/spf13/cobra"

	"econindex/internal/app"
)

var (
	normalizeDryRun bool
	normalizeCSVDir string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Fetch all sources once and write the normalized dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Normalize(cmd.Context(), app.NormalizeOptions{
			DryRun: normalizeDryRun,
			CSVDir: normalizeCSVDir,
		})
	},
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeDryRun, "dry-run", false, "Run the pipeline without writing to storage")
	normalizeCmd.Flags().StringVar(&normalizeCSVDir, "csv-dir", "", "Directory for relative CSV source paths")
}
