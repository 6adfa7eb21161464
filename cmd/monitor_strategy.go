/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// monitorStrategyCmd represents the monitor-strategy command
var monitorStrategyCmd = &cobra.Command{
	Use:   "monitor-strategy <symbol> <qty> <sl> <tp>",
	Short: "Start Stop Loss/Take Profit Strategy (OCO)",
	Long: `Guard an open futures position:
places the take-profit limit order immediately, monitors the price,
and when the stop-loss is hit cancels the take-profit and sends a market order.`,
	Args: cobra.ExactArgs(4),
	Run:  bootstrap.StartMonitorStrategy,
}

func init() {
	rootCmd.AddCommand(monitorStrategyCmd)
	monitorStrategyCmd.Flags().String("direction", "long", "position direction: long or short")
	addSimulationFlags(monitorStrategyCmd)
}
