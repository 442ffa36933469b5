package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateCountry string
	simulateYear    int
	simulateFrom    string
	simulateTo      string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次序列跳变并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCountry == "" || simulateYear == 0 {
			return errors.New("--country 与 --year 必须提供")
		}

		from, err := decimal.NewFromString(simulateFrom)
		if err != nil {
			return errors.New("--from 必须是数字")
		}
		to, err := decimal.NewFromString(simulateTo)
		if err != nil {
			return errors.New("--to 必须是数字")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateCountry, simulateYear, from, to)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCountry, "country", "", "ISO3 国家代码")
	simulateCmd.Flags().IntVar(&simulateYear, "year", 0, "跳变后的年份")
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "", "上一年的数值")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "", "当年的数值")
}
