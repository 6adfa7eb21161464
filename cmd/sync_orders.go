/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"time"

	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// syncOrdersCmd represents the sync-orders command
var syncOrdersCmd = &cobra.Command{
	Use:   "sync-orders",
	Short: "Sync pending journaled orders with the broker status",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartSyncOrders,
}

func init() {
	rootCmd.AddCommand(syncOrdersCmd)
	addSimulationFlags(syncOrdersCmd)

	syncOrdersCmd.Flags().Duration("interval", 30*time.Second, "sync interval")
	syncOrdersCmd.Flags().Bool("once", false, "sync once and exit")
}
