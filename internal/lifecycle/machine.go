// Package lifecycle holds the tender state machine. Every mutation is
// checked here against the freshest canonical record before any
// backend is contacted, so impossible transitions are rejected locally
// and the ledger only ever sees plausible calls.
package lifecycle

import (
	"fmt"
	"time"

	"tenderbridge/internal/models"
)

// Validate rejects an action that is illegal for the record's current
// state or for the acting party. The distinction matters to callers:
// ErrInvalidTransition means wrong state, ErrExpired means the bidding
// window is over, ErrInvalidParty means the right state but the wrong
// actor.
func Validate(record *models.TenderRecord, kind models.IntentKind, actor string, now time.Time) error {
	if record == nil {
		return models.ErrNotFound
	}
	if actor == "" {
		return fmt.Errorf("lifecycle.Validate: empty actor: %w", models.ErrInvalidParty)
	}

	switch kind {
	case models.IntentTake:
		return validateTake(record, actor, now)
	case models.IntentBid:
		return validateBid(record, actor, now)
	case models.IntentComplete:
		return validateComplete(record, actor)
	case models.IntentCancel:
		return validateCancel(record, actor)
	case models.IntentClose:
		return validateClose(record, actor)
	}
	return fmt.Errorf("lifecycle.Validate: no such action %q: %w", kind, models.ErrInvalidTransition)
}

func validateTake(record *models.TenderRecord, actor string, now time.Time) error {
	if record.Status != models.TenderOpen {
		return transitionErr(record.Status, models.IntentTake)
	}
	if !record.BiddingOpen(now) {
		return fmt.Errorf("lifecycle: tender %s: %w", record.Id, models.ErrExpired)
	}
	if record.Creator == actor {
		return fmt.Errorf("lifecycle: creator cannot take own tender: %w", models.ErrInvalidParty)
	}
	return nil
}

func validateBid(record *models.TenderRecord, actor string, now time.Time) error {
	if record.Status != models.TenderOpen {
		return transitionErr(record.Status, models.IntentBid)
	}
	if !record.BiddingOpen(now) {
		return fmt.Errorf("lifecycle: tender %s: %w", record.Id, models.ErrExpired)
	}
	if record.Creator == actor {
		return fmt.Errorf("lifecycle: creator cannot bid on own tender: %w", models.ErrInvalidParty)
	}
	return nil
}

func validateComplete(record *models.TenderRecord, actor string) error {
	if record.Status != models.TenderAwarded {
		return transitionErr(record.Status, models.IntentComplete)
	}
	if record.Assignee != actor {
		return fmt.Errorf("lifecycle: only the assignee completes a tender: %w", models.ErrInvalidParty)
	}
	return nil
}

// Cancellation is open-state only: once a carrier is assigned the
// tender settles through complete, and a closed tender is already
// done.
func validateCancel(record *models.TenderRecord, actor string) error {
	if record.Status != models.TenderOpen {
		return transitionErr(record.Status, models.IntentCancel)
	}
	if record.Creator != actor {
		return fmt.Errorf("lifecycle: only the creator cancels a tender: %w", models.ErrInvalidParty)
	}
	return nil
}

func validateClose(record *models.TenderRecord, actor string) error {
	if record.Status != models.TenderOpen {
		return transitionErr(record.Status, models.IntentClose)
	}
	if record.Creator != actor {
		return fmt.Errorf("lifecycle: only the creator closes a tender: %w", models.ErrInvalidParty)
	}
	return nil
}

func transitionErr(status models.TenderStatus, kind models.IntentKind) error {
	return fmt.Errorf("lifecycle: %s not allowed while tender is %s: %w",
		kind, status, models.ErrInvalidTransition)
}

// Outcome returns the status and assignee the record will carry after
// a validated action succeeds.
func Outcome(record *models.TenderRecord, kind models.IntentKind, actor string) (models.TenderStatus, string) {
	switch kind {
	case models.IntentTake:
		return models.TenderAwarded, actor
	case models.IntentComplete:
		return models.TenderCompleted, record.Assignee
	case models.IntentCancel:
		return models.TenderCancelled, record.Assignee
	case models.IntentClose:
		return models.TenderClosed, record.Assignee
	}
	return record.Status, record.Assignee
}
