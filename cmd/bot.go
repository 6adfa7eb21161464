/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// botCmd represents the bot command
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start the Telegram Bot to listen for trading commands",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
	addSimulationFlags(botCmd)
}
