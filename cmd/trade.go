/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// tradeCmd represents the trade command
var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Run a trading strategy",
	Long:  `Run a trading strategy in simulation. The ma strategy buys once when the last price crosses above its moving average.`,
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartTrade,
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.Flags().String("strategy", "ma", "strategy name")
	tradeCmd.Flags().String("symbol", "TMFR1", "futures symbol")
}
