package models

import (
	"strings"
	"time"
)

type TenderStatus string

const (
	TenderOpen      TenderStatus = "Open"
	TenderClosed    TenderStatus = "Closed"
	TenderAwarded   TenderStatus = "Awarded"
	TenderCompleted TenderStatus = "Completed"
	TenderCancelled TenderStatus = "Cancelled"
)

func ValidTenderStatus(t TenderStatus) bool {
	switch t {
	case TenderOpen, TenderClosed, TenderAwarded, TenderCompleted, TenderCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is legal out of t.
// Closed ends a tender that expired or was withdrawn from bidding
// without an award; only Open tenders move at all.
func (t TenderStatus) Terminal() bool {
	switch t {
	case TenderClosed, TenderCompleted, TenderCancelled:
		return true
	default:
		return false
	}
}

// Origin tags which backing system(s) currently hold a canonical record.
type Origin string

const (
	OriginStore     Origin = "RecordStore"
	OriginLedger    Origin = "Ledger"
	OriginBoth      Origin = "Both"
	OriginSynthetic Origin = "Synthetic"
)

func ValidOrigin(o Origin) bool {
	switch o {
	case OriginStore, OriginLedger, OriginBoth, OriginSynthetic:
		return true
	default:
		return false
	}
}

// SyntheticIdPrefix marks placeholder identifiers. They are display
// filler and never resolve to a real tender.
const SyntheticIdPrefix = "synthetic-"

func SyntheticId(id string) bool {
	return strings.HasPrefix(id, SyntheticIdPrefix)
}

type CargoType string

const (
	CargoGeneral    CargoType = "general"
	CargoFragile    CargoType = "fragile"
	CargoPerishable CargoType = "perishable"
)

func ValidCargoType(t CargoType) bool {
	switch t {
	case CargoGeneral, CargoFragile, CargoPerishable:
		return true
	default:
		return false
	}
}

// CargoAttributes is payload detail carried through both stores untouched.
type CargoAttributes struct {
	DistanceKm  int       `json:"distanceKm"`
	WeightKg    int       `json:"weightKg"`
	CargoType   CargoType `json:"cargoType"`
	UrgencyDays int       `json:"urgencyDays"`
}

// TenderRecord is the canonical, store-agnostic projection of one logical
// tender. Id is always the record-store identifier; LedgerId stays empty
// until the tender is mirrored on the ledger.
type TenderRecord struct {
	Id              string          `json:"id"`
	LedgerId        string          `json:"ledgerId,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Budget          int64           `json:"budget"`
	Deadline        time.Time       `json:"deadline"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	Status          TenderStatus    `json:"status"`
	Creator         string          `json:"creator"`
	Assignee        string          `json:"assignee,omitempty"`
	Cargo           CargoAttributes `json:"cargo"`
	Origin          Origin          `json:"origin"`
	TimeLeftSeconds *int64          `json:"timeLeftSeconds,omitempty"`
	Expired         bool            `json:"expired"`
	UpdatedAt       time.Time       `json:"-"`
}

// OnLedger reports whether the record is resolvable on the ledger side.
func (t *TenderRecord) OnLedger() bool {
	return t.Origin == OriginLedger || t.Origin == OriginBoth
}

// BiddingOpen reports whether the tender still accepts take/bid actions at
// the given instant. A zero ExpiresAt means the tender never expires.
func (t *TenderRecord) BiddingOpen(now time.Time) bool {
	if t.Status != TenderOpen {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

// TenderFilter narrows tender listings. Zero-valued fields do not
// filter.
type TenderFilter struct {
	Status   TenderStatus
	Creator  string
	Assignee string
}

// TenderDraft carries the caller-supplied fields of a create intent.
type TenderDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Budget      int64           `json:"budget"`
	Deadline    time.Time       `json:"deadline"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Creator     string          `json:"creator"`
	Cargo       CargoAttributes `json:"cargo"`
}
