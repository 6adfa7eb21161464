/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tool and broker gateway version",
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
