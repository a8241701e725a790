package ledger

import (
	"errors"
	"strings"

	"tenderbridge/internal/models"
)

// RevertError carries the program's rejection message verbatim.
type RevertError struct {
	Message string
}

func (e *RevertError) Error() string {
	return "ledger revert: " + e.Message
}

// Revert messages the tender program is known to emit, checked in
// order. Matching is case-insensitive on the trimmed message so
// wrapper prefixes added by nodes ("execution reverted: ...") still
// resolve.
var revertVocabulary = []struct {
	phrase string
	mapped error
}{
	{"tender does not exist", models.ErrNotFound},
	{"tender already exists", models.ErrIdentifierCollision},
	{"tender expired", models.ErrExpired},
	{"tender is not open", models.ErrLedgerRejected},
	{"cannot act on own tender", models.ErrLedgerRejected},
	{"bid does not exist", models.ErrNoBid},
	{"bidding closed", models.ErrLedgerRejected},
	{"not the tender creator", models.ErrLedgerRejected},
	{"not the assigned carrier", models.ErrLedgerRejected},
	{"tender already has carrier", models.ErrLedgerRejected},
}

// MapRevert translates a client error into the bridge's error
// taxonomy. Non-revert errors pass through unchanged; reverts resolve
// through the vocabulary, and unknown messages become a
// LedgerRejectedError carrying the raw message so nothing the program
// said is lost.
func MapRevert(err error) error {
	if err == nil {
		return nil
	}

	var revert *RevertError
	if !errors.As(err, &revert) {
		return err
	}

	message := normalizeRevert(revert.Message)
	for _, entry := range revertVocabulary {
		if !strings.Contains(message, entry.phrase) {
			continue
		}
		if errors.Is(entry.mapped, models.ErrLedgerRejected) {
			return &models.LedgerRejectedError{Reason: revert.Message}
		}
		return entry.mapped
	}
	return &models.LedgerRejectedError{Reason: revert.Message}
}

func normalizeRevert(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}
