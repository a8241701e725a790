package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenderbridge/internal/config"
	"tenderbridge/internal/models"
	"tenderbridge/internal/pricing"
)

func newEstimateCommand() *cobra.Command {
	var (
		distance int
		weight   int
		cargo    string
		urgency  int
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Suggest a budget for a cargo",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewConfig()
			if err != nil {
				return err
			}

			attributes := models.CargoAttributes{
				DistanceKm:  distance,
				WeightKg:    weight,
				CargoType:   models.CargoType(cargo),
				UrgencyDays: urgency,
			}

			estimator := pricing.NewEstimator(conf.EstimatorURL, conf.ReadTimeout)
			estimate, err := estimator.Estimate(cmd.Context(), attributes)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%.2f (%s)\n", estimate.PredictedPrice, estimate.Source)
			return nil
		},
	}

	cmd.Flags().IntVar(&distance, "distance", 0, "distance in km")
	cmd.Flags().IntVar(&weight, "weight", 0, "cargo weight in kg")
	cmd.Flags().StringVar(&cargo, "cargo", string(models.CargoGeneral), "cargo type: general, fragile or perishable")
	cmd.Flags().IntVar(&urgency, "urgency", 14, "days until the freight must move")
	return cmd
}
