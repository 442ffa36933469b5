package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"econindex/internal/app"
	"econindex/internal/model"
)

var (
	showCountry   string
	showIndicator string
	showBaseYear  int
	showColumn    string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display one country's series rebased to a base year",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showCountry == "" {
			return errors.New("--country must be provided")
		}

		indicator, err := model.ParseIndicatorType(showIndicator)
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			Country:   showCountry,
			Indicator: indicator,
			BaseYear:  showBaseYear,
		}
		if showColumn != "" {
			if opts.Column, err = model.ParseValueColumn(showColumn); err != nil {
				return err
			}
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCountry, "country", "", "ISO3 country code")
	showCmd.Flags().StringVar(&showIndicator, "indicator", "cpi", "Indicator type (cpi, food_cpi, wage, housing_price, fx_rate)")
	showCmd.Flags().IntVar(&showBaseYear, "base-year", 0, "Base year (defaults to the configured policy)")
	showCmd.Flags().StringVar(&showColumn, "column", "", "Value column to rebase: local or common (defaults to config)")
}
