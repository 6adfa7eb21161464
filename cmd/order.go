/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// orderCmd represents the order command
var orderCmd = &cobra.Command{
	Use:   "order <code>",
	Short: "Place a real or simulated limit order",
	Args:  cobra.ExactArgs(1),
	Run:   bootstrap.StartOrder,
}

// listOrdersCmd represents the list-orders command
var listOrdersCmd = &cobra.Command{
	Use:   "list-orders",
	Short: "List today's trades and orders",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartListOrders,
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <order_id> <price>",
	Short: "Update the price of an active order",
	Args:  cobra.ExactArgs(2),
	Run:   bootstrap.StartUpdateOrder,
}

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an order by ID or all active orders",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartCancelOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd, listOrdersCmd, updateCmd, cancelCmd)

	orderCmd.Flags().String("action", "", "buy or sell")
	orderCmd.Flags().String("price", "", "order price")
	orderCmd.Flags().Int64("qty", 1, "quantity")
	orderCmd.Flags().String("type", "future", "future or stock")
	_ = orderCmd.MarkFlagRequired("action")
	_ = orderCmd.MarkFlagRequired("price")

	cancelCmd.Flags().String("id", "", "specific order ID to cancel")
	cancelCmd.Flags().Bool("all", false, "cancel ALL active orders")

	for _, c := range []*cobra.Command{orderCmd, listOrdersCmd, updateCmd, cancelCmd} {
		addSimulationFlags(c)
	}
}
