// Package cli wires the tenderbridge command tree.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tenderbridge",
		Short:         "Freight tender bridge across a record store and a ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newCheckCommand(),
		newNetworksCommand(),
		newEstimateCommand(),
	)
	return root
}
