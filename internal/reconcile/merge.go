package reconcile

import (
	"sort"
	"strconv"

	"tenderbridge/internal/models"
)

// Merge folds both sources' listings into the canonical one. Pure
// function: no I/O, no clock, and deterministic output order, so the
// same inputs always produce the same board.
//
// Records pair up by ledger id. Paired records take authoritative
// state from the ledger side and descriptive fields from the store
// side; unpaired records pass through tagged with their origin.
// Store-derived entries keep the store's order, ledger-only entries
// follow sorted by numeric id.
func Merge(storeRecords, ledgerRecords []models.TenderRecord) []models.TenderRecord {
	byLedgerId := make(map[string]models.TenderRecord, len(ledgerRecords))
	for _, record := range ledgerRecords {
		byLedgerId[record.LedgerId] = record
	}

	merged := make([]models.TenderRecord, 0, len(storeRecords)+len(ledgerRecords))
	for _, record := range storeRecords {
		paired, ok := byLedgerId[record.LedgerId]
		if record.LedgerId != "" && ok {
			merged = append(merged, mergePair(record, paired))
			delete(byLedgerId, record.LedgerId)
			continue
		}
		record.Origin = models.OriginStore
		merged = append(merged, record)
	}

	extra := make([]models.TenderRecord, 0, len(byLedgerId))
	for _, record := range byLedgerId {
		record.Origin = models.OriginLedger
		extra = append(extra, record)
	}
	sort.Slice(extra, func(i, j int) bool {
		return lessLedgerId(extra[i].LedgerId, extra[j].LedgerId)
	})

	return append(merged, extra...)
}

// MergeOne is the single-record form of Merge.
func MergeOne(storeRecord, ledgerRecord *models.TenderRecord) *models.TenderRecord {
	switch {
	case storeRecord == nil && ledgerRecord == nil:
		return nil
	case ledgerRecord == nil:
		record := *storeRecord
		record.Origin = models.OriginStore
		return &record
	case storeRecord == nil:
		record := *ledgerRecord
		record.Origin = models.OriginLedger
		return &record
	}
	record := mergePair(*storeRecord, *ledgerRecord)
	return &record
}

// mergePair resolves one tender present on both sides. The ledger is
// authoritative for lifecycle state, the store for what humans wrote.
// The one exception is Closed: it exists only in the store, so a
// store-side Closed survives a ledger that still says Open.
func mergePair(storeRecord, ledgerRecord models.TenderRecord) models.TenderRecord {
	merged := storeRecord
	merged.LedgerId = ledgerRecord.LedgerId
	merged.Origin = models.OriginBoth

	merged.Status = ledgerRecord.Status
	if storeRecord.Status == models.TenderClosed && ledgerRecord.Status == models.TenderOpen {
		merged.Status = models.TenderClosed
	}
	merged.Assignee = ledgerRecord.Assignee

	if !ledgerRecord.ExpiresAt.IsZero() {
		merged.ExpiresAt = ledgerRecord.ExpiresAt
	}
	if !ledgerRecord.Deadline.IsZero() {
		merged.Deadline = ledgerRecord.Deadline
	}
	if ledgerRecord.Budget > 0 {
		merged.Budget = ledgerRecord.Budget
	}
	if merged.Title == "" {
		merged.Title = ledgerRecord.Title
	}
	return merged
}

// MergeBids combines store and ledger bids for one tender. Bids placed
// through the bridge exist on both sides; the store copy wins because
// it carries the id and settlement status. Ledger-only bids, placed by
// other frontends, are appended as pending.
func MergeBids(storeBids, ledgerBids []models.Bid) []models.Bid {
	seen := make(map[string]bool, len(storeBids))
	for _, bid := range storeBids {
		seen[bidKey(bid)] = true
	}

	merged := append([]models.Bid(nil), storeBids...)
	for _, bid := range ledgerBids {
		if seen[bidKey(bid)] {
			continue
		}
		merged = append(merged, bid)
	}
	return merged
}

func bidKey(bid models.Bid) string {
	return bid.Bidder + "\x00" + strconv.FormatInt(bid.Amount, 10)
}

func lessLedgerId(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
