package cli

import (
	"github.com/spf13/cobra"

	"tenderbridge/internal/app"
)

func newServeCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			options := []app.Option{}
			if address != "" {
				options = append(options, app.WithServerAddress(address))
			}

			bridge, err := app.StartupApp(options...)
			if err != nil {
				return err
			}
			return bridge.Run()
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address, overrides SERVER_ADDRESS")
	return cmd
}
