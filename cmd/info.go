/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <query>",
	Short: "Search for contract info (Futures & Stocks)",
	Args:  cobra.MinimumNArgs(1),
	Run:   bootstrap.StartInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
