package models

import "time"

type BidStatus string

const (
	BidPending   BidStatus = "Pending"
	BidAccepted  BidStatus = "Accepted"
	BidRejected  BidStatus = "Rejected"
	BidWithdrawn BidStatus = "Withdrawn"
)

func ValidBidStatus(t BidStatus) bool {
	switch t {
	case BidPending, BidAccepted, BidRejected, BidWithdrawn:
		return true
	default:
		return false
	}
}

// Bid is an offer against an open tender. Bid functions are an optional
// part of the ledger surface: a program that exposes them mirrors the
// bid, any other deployment keeps it as a record-store overlay on the
// single-assignee model.
type Bid struct {
	Id        string    `json:"id"`
	TenderId  string    `json:"tenderId"`
	Bidder    string    `json:"bidder"`
	Amount    int64     `json:"amount"`
	Proposal  string    `json:"proposal"`
	Status    BidStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

// BidDraft carries the caller-supplied fields of a bid intent.
type BidDraft struct {
	TenderId string `json:"tenderId"`
	Bidder   string `json:"bidder"`
	Amount   int64  `json:"amount"`
	Proposal string `json:"proposal"`
}
