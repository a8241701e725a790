package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tenderbridge/internal/config"
	"tenderbridge/internal/ledger"
	"tenderbridge/internal/ledgersim"
)

// check probes the configured network the same way the server's
// health monitor does, and exits nonzero when the ledger is unusable.
func newCheckCommand() *cobra.Command {
	var networkName string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the configured ledger network",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewConfig()
			if err != nil {
				return err
			}
			if networkName != "" {
				conf.Network = networkName
			}

			catalog, err := config.LoadNetworks(conf.NetworksFile)
			if err != nil {
				return err
			}
			network, ok := catalog.ByName(conf.Network)
			if !ok {
				return fmt.Errorf("check: no such network %q", conf.Network)
			}

			var client ledger.Client
			if network.Dev {
				sim, err := ledgersim.Open(conf.SimPath, network.ChainID, network.ProgramAddress)
				if err != nil {
					return err
				}
				defer sim.Close()
				client = sim
			} else {
				client = ledger.NewAgentClient(network.Endpoint, network.ProgramAddress, conf.ReadTimeout)
			}

			monitor := ledger.NewMonitor(client, network, conf.LedgerConfig)
			status := monitor.Refresh(cmd.Context())

			out, err := yaml.Marshal(status)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))

			if status.State != ledger.StateAvailable {
				return fmt.Errorf("check: network %q is %s", network.Name, status.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&networkName, "network", "", "network to probe, overrides LEDGER_NETWORK")
	return cmd
}
