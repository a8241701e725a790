package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"tenderbridge/internal/models"
)

//// Identifier derivation

// ZeroID is the ledger's "no such entry" identifier. Lookups that come
// back with it mean the tender is absent, and derivation never produces
// it for any input.
const ZeroID = "0"

const (
	idFloor = 10000
	idSpan  = 990000
	minRun  = 4

	// Ledger ids travel as signed 64-bit integers; longer digit
	// strings fall through to the hash.
	maxDigits = 18
)

// ToLedgerID derives the numeric ledger identifier for a record-store
// identifier. The derivation is deterministic: the same record id maps
// to the same ledger id on every node, with no coordination.
//
// Identifiers that are already numeric pass through unchanged, an
// embedded run of four or more digits is used as-is, and anything else
// is hashed into [10000, 1000000).
func ToLedgerID(recordID string) string {
	id := norm.NFC.String(strings.TrimSpace(recordID))
	if id == "" {
		return hashID(recordID)
	}

	if isDigits(id) && !allZero(id) {
		if n := canonical(id); len(n) <= maxDigits {
			return n
		}
		return hashID(id)
	}

	if run := longestDigitRun(id); len(run) >= minRun && !allZero(run) {
		if n := canonical(run); len(n) <= maxDigits {
			return n
		}
	}

	return hashID(id)
}

// canonical strips leading zeros so the id round-trips through the
// ledger's integer representation unchanged.
func canonical(digits string) string {
	return strings.TrimLeft(digits, "0")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func allZero(s string) bool {
	for _, r := range s {
		if r != '0' {
			return false
		}
	}
	return true
}

func longestDigitRun(s string) string {
	best, start := "", -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > len(best) {
			best = s[start:i]
		}
		start = -1
	}
	if start >= 0 && len(s)-start > len(best) {
		best = s[start:]
	}
	return best
}

func hashID(s string) string {
	var h int32
	for _, r := range s {
		h = h<<5 - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v%idSpan+idFloor, 10)
}

//// Persisted assignment

// AssignmentStore persists which ledger id a record id was bound to.
// Bind fails with models.ErrIdentifierCollision when the ledger id is
// already held by a different record id.
type AssignmentStore interface {
	LookupLedgerId(ctx context.Context, recordID string) (string, error)
	LookupRecordId(ctx context.Context, ledgerID string) (string, error)
	BindLedgerId(ctx context.Context, recordID, ledgerID string) error
}

// Resolver assigns ledger identifiers through an AssignmentStore, so a
// record id keeps the id it was first bound to even if the derivation
// rules change, and two records can never silently share one ledger
// entry.
type Resolver struct {
	store AssignmentStore
}

func NewResolver(store AssignmentStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the bound ledger id for recordID, deriving and
// binding one on first use.
func (r *Resolver) Resolve(ctx context.Context, recordID string) (string, error) {
	bound, err := r.store.LookupLedgerId(ctx, recordID)
	if err == nil {
		return bound, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("ledger.Resolver.Resolve: %w", err)
	}

	derived := ToLedgerID(recordID)
	err = r.store.BindLedgerId(ctx, recordID, derived)
	if err != nil {
		if errors.Is(err, models.ErrIdentifierCollision) {
			return "", fmt.Errorf("ledger.Resolver.Resolve: id %q for record %q: %w",
				derived, recordID, models.ErrIdentifierCollision)
		}
		return "", fmt.Errorf("ledger.Resolver.Resolve: %w", err)
	}
	return derived, nil
}

// RecordFor answers the reverse question: which record id owns a
// ledger id. Entries created directly on the ledger have no binding
// and come back as models.ErrNotFound.
func (r *Resolver) RecordFor(ctx context.Context, ledgerID string) (string, error) {
	recordID, err := r.store.LookupRecordId(ctx, ledgerID)
	if err != nil {
		return "", fmt.Errorf("ledger.Resolver.RecordFor: %w", err)
	}
	return recordID, nil
}
