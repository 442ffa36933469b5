package cli

import (
	"github.com/spf13/cobra"

	"econindex/internal/app"
)

var (
	factorCountry string
	factorYear    int
)

var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Print currency redenomination factors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Factor(app.FactorOptions{Country: factorCountry, Year: factorYear})
	},
}

func init() {
	factorCmd.Flags().StringVar(&factorCountry, "country", "", "ISO3 country code (empty lists every country)")
	factorCmd.Flags().IntVar(&factorYear, "year", 0, "Print the cumulative factor applied to this year")
}
