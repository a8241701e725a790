package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenderbridge/internal/config"
	"tenderbridge/internal/repository/db"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate {up|down}",
		Short:     "Apply or roll back the record store schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewPostgresConfig()
			if err != nil {
				return err
			}

			switch args[0] {
			case "up":
				err = db.MigrateUp(conf.MigrationsURL, conf.Conn)
			case "down":
				err = db.MigrateDown(conf.MigrationsURL, conf.Conn)
			default:
				return fmt.Errorf("migrate: direction must be up or down, got %q", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", args[0])
			return nil
		},
	}
}
