package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tenderbridge/internal/models"
	"tenderbridge/internal/pricing"
)

func TestCore_PrefillBudget(t *testing.T) {
	core := &Core{estimator: pricing.NewEstimator("", time.Second)}
	draft := &models.TenderDraft{
		Title: "Grain haul",
		Cargo: models.CargoAttributes{
			DistanceKm:  100,
			WeightKg:    200,
			CargoType:   models.CargoGeneral,
			UrgencyDays: 30,
		},
	}

	core.prefillBudget(context.Background(), draft)
	assert.Equal(t, int64(12000), draft.Budget, "heuristic dollars land as minor units")
}

func TestCore_PrefillBudgetSkipsBadCargo(t *testing.T) {
	core := &Core{estimator: pricing.NewEstimator("", time.Second)}
	draft := &models.TenderDraft{Cargo: models.CargoAttributes{CargoType: "antimatter"}}

	core.prefillBudget(context.Background(), draft)
	assert.Zero(t, draft.Budget, "a failed estimate leaves the draft untouched")
}
