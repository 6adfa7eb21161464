/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// testOrderCmd represents the test-order command
var testOrderCmd = &cobra.Command{
	Use:   "test-order",
	Short: "Place a test order (Simulation)",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartTestOrder,
}

func init() {
	rootCmd.AddCommand(testOrderCmd)
	testOrderCmd.Flags().String("type", "future", "future or stock")
}
