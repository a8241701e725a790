package controller

import (
	"fmt"
	"time"

	"tenderbridge/internal/models"
)

const maxTitleLen = 200

type NewTenderRequest struct {
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Budget           int64                  `json:"budget"`
	Deadline         time.Time              `json:"deadline,omitempty"`
	ExpiresAt        time.Time              `json:"expiresAt,omitempty"`
	ExpiresInSeconds int64                  `json:"expiresInSeconds,omitempty"`
	Creator          string                 `json:"creator"`
	Cargo            models.CargoAttributes `json:"cargo"`
}

func (req *NewTenderRequest) Validate() error {
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(req.Title) > maxTitleLen {
		return fmt.Errorf("title is longer than %d characters", maxTitleLen)
	}
	if req.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	if !req.ExpiresAt.IsZero() && req.ExpiresInSeconds != 0 {
		return fmt.Errorf("expiresAt and expiresInSeconds are mutually exclusive")
	}
	if req.ExpiresInSeconds < 0 {
		return fmt.Errorf("expiresInSeconds must not be negative")
	}
	return validateCargo(&req.Cargo)
}

// Draft converts the request into a create draft, resolving the expiry
// shorthand against the given instant.
func (req *NewTenderRequest) Draft(now time.Time) models.TenderDraft {
	expiresAt := req.ExpiresAt
	if req.ExpiresInSeconds > 0 {
		expiresAt = now.Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	}
	return models.TenderDraft{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Deadline:    req.Deadline,
		ExpiresAt:   expiresAt,
		Creator:     req.Creator,
		Cargo:       req.Cargo,
	}
}

type ActionRequest struct {
	Actor string `json:"actor"`
}

type NewBidRequest struct {
	TenderId string `json:"tenderId"`
	Bidder   string `json:"bidder"`
	Amount   int64  `json:"amount"`
	Proposal string `json:"proposal"`
}

func (req *NewBidRequest) Validate() error {
	if req.TenderId == "" {
		return fmt.Errorf("tenderId is required")
	}
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

type AgentChangedRequest struct {
	Account string `json:"account"`
	Network string `json:"network"`
}

type EstimateRequest struct {
	models.CargoAttributes
}

func (req *EstimateRequest) Validate() error {
	return validateCargo(&req.CargoAttributes)
}

type NewPartyRequest struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

func (req *NewPartyRequest) Validate() error {
	if req.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

func validateCargo(cargo *models.CargoAttributes) error {
	if cargo.CargoType == "" {
		cargo.CargoType = models.CargoGeneral
	}
	if !models.ValidCargoType(cargo.CargoType) {
		return fmt.Errorf("no such cargo type %q", cargo.CargoType)
	}
	if cargo.DistanceKm < 0 || cargo.WeightKg < 0 || cargo.UrgencyDays < 0 {
		return fmt.Errorf("cargo attributes must not be negative")
	}
	return nil
}

type ActionResponse struct {
	Tender             models.TenderRecord `json:"tender"`
	Migrated           bool                `json:"migrated,omitempty"`
	CapabilityDegraded bool                `json:"capabilityDegraded,omitempty"`
}
