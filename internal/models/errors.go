package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("requested tender does not exist in either store")
	ErrInvalidTransition   = errors.New("requested action is not legal from the tender's current status")
	ErrExpired             = errors.New("tender bidding window has expired")
	ErrLedgerUnavailable   = errors.New("ledger is not reachable or not correctly configured")
	ErrLedgerRejected      = errors.New("ledger program rejected the call")
	ErrUserCancelled       = errors.New("user cancelled the signing step")
	ErrTimeout             = errors.New("call timed out before completion")
	ErrBusy                = errors.New("another operation is already in flight for this tender")
	ErrIdentifierCollision = errors.New("distinct record ids resolved to the same ledger id")
	ErrNoBid               = errors.New("requested bid does not exist")
	ErrInvalidParty        = errors.New("provided party does not exist")
)

// LedgerRejectedError carries the raw revert message alongside the
// ErrLedgerRejected sentinel so callers can both match with errors.Is and
// surface the program's own wording.
type LedgerRejectedError struct {
	Reason string
}

func (e *LedgerRejectedError) Error() string {
	return fmt.Sprintf("ledger program rejected the call: %s", e.Reason)
}

func (e *LedgerRejectedError) Unwrap() error { return ErrLedgerRejected }

// RejectionReason extracts the raw revert message when err is a ledger
// rejection, and "" otherwise.
func RejectionReason(err error) string {
	var lre *LedgerRejectedError
	if errors.As(err, &lre) {
		return lre.Reason
	}
	return ""
}
