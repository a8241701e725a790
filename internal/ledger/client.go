package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"tenderbridge/internal/models"
)

//// Program functions

// Function names the tender program declares on the ledger. The bridge
// refuses to report the ledger as available unless every required
// function is present; bid functions are optional and only gate the
// bid capability.
const (
	FnCreateTender     = "createTender"
	FnGetTender        = "getTender"
	FnGetActiveTenders = "getActiveTenders"
	FnGetTenderCount   = "getTenderCount"
	FnTakeTender       = "takeTender"
	FnCompleteTender   = "completeTender"
	FnCancelTender     = "cancelTender"
	FnPlaceBid         = "placeBid"
	FnGetTenderBids    = "getTenderBids"
)

func RequiredFunctions() []string {
	return []string{
		FnCreateTender,
		FnGetTender,
		FnGetActiveTenders,
		FnGetTenderCount,
		FnTakeTender,
		FnCompleteTender,
		FnCancelTender,
	}
}

func BidFunctions() []string {
	return []string{FnPlaceBid, FnGetTenderBids}
}

//// Facts

// Fact names emitted in finalization receipts.
const (
	FactTenderCreated   = "TenderCreated"
	FactTenderTaken     = "TenderTaken"
	FactTenderCompleted = "TenderCompleted"
	FactTenderCancelled = "TenderCancelled"
	FactBidPlaced       = "BidPlaced"
)

type Fact struct {
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

func (f Fact) Value(key string) string {
	return f.Values[key]
}

// Receipt is the finalized outcome of a previously submitted call.
type Receipt struct {
	Ref   string `json:"ref"`
	Facts []Fact `json:"facts"`
}

func (r *Receipt) Fact(name string) (Fact, bool) {
	for _, fact := range r.Facts {
		if fact.Name == name {
			return fact, true
		}
	}
	return Fact{}, false
}

// PendingHandle identifies a submitted but not yet finalized call.
type PendingHandle struct {
	Ref string `json:"ref"`
}

//// Client

// Client is the transport to one ledger network. Read answers
// immediately from current state; Send submits a state change and
// returns before finalization, which AwaitFinalization then blocks on.
//
// Implementations return *RevertError when the program rejects a call,
// models.ErrUserCancelled when the signer refuses to sign, and wrap
// models.ErrLedgerUnavailable for transport failures.
type Client interface {
	ChainID(ctx context.Context) (string, error)
	GetCode(ctx context.Context, address string) (string, error)
	Functions(ctx context.Context, address string) ([]string, error)
	Read(ctx context.Context, fn string, args ...any) (json.RawMessage, error)
	Send(ctx context.Context, fn string, actor string, args ...any) (PendingHandle, error)
	AwaitFinalization(ctx context.Context, handle PendingHandle) (*Receipt, error)
}

//// Wire shapes

// TenderData is the ledger's view of one tender. Identifiers and the
// assignee are addresses, times are unix seconds, status is the
// program's numeric code.
type TenderData struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	Budget    int64  `json:"budget"`
	Deadline  int64  `json:"deadline"`
	ExpiresAt int64  `json:"expiresAt"`
	Status    uint8  `json:"status"`
	Creator   string `json:"creator"`
	Assignee  string `json:"assignee"`
}

type BidData struct {
	TenderId string `json:"tenderId"`
	Bidder   string `json:"bidder"`
	Amount   int64  `json:"amount"`
	Proposal string `json:"proposal"`
}

//// Status codes

const (
	codeOpen uint8 = iota
	codeClosed
	codeAwarded
	codeCompleted
	codeCancelled
)

func StatusFromCode(code uint8) (models.TenderStatus, error) {
	switch code {
	case codeOpen:
		return models.TenderOpen, nil
	case codeClosed:
		return models.TenderClosed, nil
	case codeAwarded:
		return models.TenderAwarded, nil
	case codeCompleted:
		return models.TenderCompleted, nil
	case codeCancelled:
		return models.TenderCancelled, nil
	}
	return "", fmt.Errorf("ledger.StatusFromCode: unknown status code %d", code)
}

func CodeFromStatus(status models.TenderStatus) (uint8, error) {
	switch status {
	case models.TenderOpen:
		return codeOpen, nil
	case models.TenderClosed:
		return codeClosed, nil
	case models.TenderAwarded:
		return codeAwarded, nil
	case models.TenderCompleted:
		return codeCompleted, nil
	case models.TenderCancelled:
		return codeCancelled, nil
	}
	return 0, fmt.Errorf("ledger.CodeFromStatus: unknown status %q", status)
}
