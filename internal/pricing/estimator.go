// Package pricing suggests a starting budget for a tender from its
// cargo attributes. When a price model service is configured it is
// asked first; the built-in heuristic answers when the model is absent
// or unreachable, so the estimate endpoint never fails on a missing
// sidecar.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"tenderbridge/internal/models"
)

type Estimate struct {
	PredictedPrice float64 `json:"predictedPrice"`
	Source         string  `json:"source"`
}

const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

type Estimator struct {
	url    string
	client *http.Client
}

func NewEstimator(url string, timeout time.Duration) *Estimator {
	return &Estimator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *Estimator) Estimate(ctx context.Context, cargo models.CargoAttributes) (Estimate, error) {
	if !models.ValidCargoType(cargo.CargoType) {
		return Estimate{}, fmt.Errorf("pricing.Estimator.Estimate: no such cargo type %q", cargo.CargoType)
	}

	if e.url != "" {
		estimate, err := e.remote(ctx, cargo)
		if err == nil {
			return estimate, nil
		}
		log.Printf("price model unreachable, falling back to heuristic: %s", err)
	}
	return Estimate{PredictedPrice: Heuristic(cargo), Source: SourceHeuristic}, nil
}

func (e *Estimator) remote(ctx context.Context, cargo models.CargoAttributes) (Estimate, error) {
	payload, err := json.Marshal(struct {
		DistanceKm  int    `json:"distance_km"`
		WeightKg    int    `json:"weight_kg"`
		CargoType   string `json:"cargo_type"`
		UrgencyDays int    `json:"urgency_days"`
	}{cargo.DistanceKm, cargo.WeightKg, string(cargo.CargoType), cargo.UrgencyDays})
	if err != nil {
		return Estimate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return Estimate{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Estimate{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Estimate{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("price model returned %d", resp.StatusCode)
	}

	out := struct {
		PredictedPrice float64 `json:"predicted_price"`
	}{}
	err = json.Unmarshal(body, &out)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{PredictedPrice: out.PredictedPrice, Source: SourceModel}, nil
}

// Heuristic mirrors the price model's published formula: a flat base
// plus distance and weight costs and an urgency premium, scaled by the
// cargo class. Rounded to cents.
func Heuristic(cargo models.CargoAttributes) float64 {
	urgency := float64(30 - cargo.UrgencyDays)
	if urgency < 0 {
		urgency = 0
	}

	price := 50 + 0.5*float64(cargo.DistanceKm) + 0.1*float64(cargo.WeightKg) + 10*urgency
	price *= multiplier(cargo.CargoType)
	return math.Round(price*100) / 100
}

func multiplier(cargoType models.CargoType) float64 {
	switch cargoType {
	case models.CargoFragile:
		return 1.3
	case models.CargoPerishable:
		return 1.5
	}
	return 1.0
}
