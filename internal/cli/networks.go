package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tenderbridge/internal/config"
)

func newNetworksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the configured ledger networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewLedgerConfig()
			if err != nil {
				return err
			}

			catalog, err := config.LoadNetworks(conf.NetworksFile)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(catalog)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
