package reconcile

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"

	"tenderbridge/internal/models"
)

const placeholderSeed = 74011

// Placeholders returns n stand-in records for degraded listings, shown
// when the ledger cannot be reached and its entries are unknown. The
// faker is seeded, so a flapping ledger redraws the same placeholders
// instead of a new board every refresh, and every record is
// unmistakably tagged synthetic.
func Placeholders(n int) []models.TenderRecord {
	if n <= 0 {
		return nil
	}

	faker := gofakeit.New(placeholderSeed)
	records := make([]models.TenderRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.TenderRecord{
			Id:          fmt.Sprintf("%s%03d", models.SyntheticIdPrefix, i+1),
			Title:       "Ledger tender awaiting resync",
			Description: "Placeholder shown while the ledger is unreachable.",
			Budget:      int64(faker.Number(500, 9500)) * 100,
			Status:      models.TenderOpen,
			Creator:     "ledger",
			Cargo: models.CargoAttributes{
				DistanceKm:  faker.Number(50, 2500),
				WeightKg:    faker.Number(100, 20000),
				CargoType:   models.CargoType(faker.RandomString(cargoTypes())),
				UrgencyDays: faker.Number(1, 30),
			},
			Origin: models.OriginSynthetic,
		})
	}
	return records
}

func cargoTypes() []string {
	return []string{
		string(models.CargoGeneral),
		string(models.CargoFragile),
		string(models.CargoPerishable),
	}
}
