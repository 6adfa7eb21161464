/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// quoteCmd represents the quote command
var quoteCmd = &cobra.Command{
	Use:   "quote <codes...>",
	Short: "Subscribe and print quotes for given codes",
	Long:  `Log in to the simulation environment, subscribe the tick stream of the codes and print new rows every second until interrupted.`,
	Args:  cobra.MinimumNArgs(1),
	Run:   bootstrap.StartQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().String("type", "future", "future or stock")
}
