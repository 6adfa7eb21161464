/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/sj-trading/internal/bootstrap"
	"github.com/spf13/cobra"
)

// reloadContractsCmd represents the reload-contracts command
var reloadContractsCmd = &cobra.Command{
	Use:   "reload-contracts",
	Short: "Reload contract info",
	Long:  `Reload the futures list from the exchange ODS file and the stock list from the ISIN HTML files into the local cache.`,
	Args:  cobra.NoArgs,
	Run:   bootstrap.StartReloadContracts,
}

func init() {
	rootCmd.AddCommand(reloadContractsCmd)
	reloadContractsCmd.Flags().String("type", "all", "all, future or stock")
	reloadContractsCmd.Flags().String("file-path", "", "custom file path")
}
