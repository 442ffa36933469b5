package cli

import (
	"github.com/spf13/cobra"

	"econindex/internal/app"
	"econindex/internal/model"
)

var (
	exportIndicator string
	exportCountries []string
	exportColumn    string
	exportBaseYear  int
	exportPNGPath   string
	exportCSVPath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a cross-country index comparison as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		indicator, err := model.ParseIndicatorType(exportIndicator)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Indicator: indicator,
			Countries: exportCountries,
			BaseYear:  exportBaseYear,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
		}
		if exportColumn != "" {
			if opts.Column, err = model.ParseValueColumn(exportColumn); err != nil {
				return err
			}
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportIndicator, "indicator", "cpi", "Indicator type to compare")
	exportCmd.Flags().StringSliceVar(&exportCountries, "countries", nil, "Comma separated ISO3 codes (defaults to all stored)")
	exportCmd.Flags().StringVar(&exportColumn, "column", "", "Value column to rebase: local or common (defaults to config)")
	exportCmd.Flags().IntVar(&exportBaseYear, "base-year", 0, "Base year (defaults to the earliest common year)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
