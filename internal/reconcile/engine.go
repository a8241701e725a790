// Package reconcile builds the canonical tender view out of the two
// backing systems. The record store is always consulted; the ledger
// joins in when healthy, and drops out into a clearly flagged degraded
// view instead of failing reads when it is not.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tenderbridge/internal/ledger"
	"tenderbridge/internal/models"
	"tenderbridge/internal/source"
)

type Engine struct {
	storeConn    source.Connector
	ledgerConn   source.Connector
	monitor      *ledger.Monitor
	placeholders int
}

// NewEngine wires the two connectors. A nil ledgerConn runs the engine
// store-only, the mode a deployment without any ledger uses.
func NewEngine(storeConn, ledgerConn source.Connector, monitor *ledger.Monitor, placeholders int) *Engine {
	return &Engine{
		storeConn:    storeConn,
		ledgerConn:   ledgerConn,
		monitor:      monitor,
		placeholders: placeholders,
	}
}

// Listing is one canonical read of the whole board. Degraded listings
// carry store records plus synthetic placeholders in place of the
// unreachable ledger entries.
type Listing struct {
	Records  []models.TenderRecord
	Degraded bool
}

func (e *Engine) ListCanonical(ctx context.Context) (Listing, error) {
	storeRecords, err := e.storeConn.List(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("reconcile.Engine.ListCanonical: %w", err)
	}

	if !e.ledgerUsable() {
		return e.degradedListing(storeRecords), nil
	}

	ledgerRecords, err := e.ledgerConn.List(ctx)
	if err != nil {
		if !degradable(err) {
			return Listing{}, fmt.Errorf("reconcile.Engine.ListCanonical: %w", err)
		}
		log.Printf("canonical listing degraded: %s", err)
		return e.degradedListing(storeRecords), nil
	}

	return Listing{Records: Merge(storeRecords, ledgerRecords)}, nil
}

func (e *Engine) GetCanonical(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	if models.SyntheticId(tenderId) {
		return nil, fmt.Errorf("reconcile.Engine.GetCanonical: %s is a placeholder: %w",
			tenderId, models.ErrNotFound)
	}

	storeRecord, err := e.storeConn.Get(ctx, tenderId)
	if errors.Is(err, models.ErrNotFound) {
		storeRecord = nil
	} else if err != nil {
		return nil, fmt.Errorf("reconcile.Engine.GetCanonical: %w", err)
	}

	if !e.ledgerUsable() {
		return e.storeOnly(storeRecord, tenderId)
	}

	ledgerRecord, err := e.ledgerConn.Get(ctx, tenderId)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			ledgerRecord = nil
		case degradable(err):
			log.Printf("canonical read of %s degraded: %s", tenderId, err)
			return e.storeOnly(storeRecord, tenderId)
		default:
			return nil, fmt.Errorf("reconcile.Engine.GetCanonical: %w", err)
		}
	}

	merged := MergeOne(storeRecord, ledgerRecord)
	if merged == nil {
		return nil, fmt.Errorf("reconcile.Engine.GetCanonical: tender %s: %w",
			tenderId, models.ErrNotFound)
	}
	return merged, nil
}

// storeOnly answers a single-tender read without the ledger. A record
// the store also lacks is reported as unavailable rather than missing:
// it may well exist on the unreachable side.
func (e *Engine) storeOnly(storeRecord *models.TenderRecord, tenderId string) (*models.TenderRecord, error) {
	if storeRecord == nil {
		if e.ledgerConn == nil {
			return nil, fmt.Errorf("reconcile.Engine.GetCanonical: tender %s: %w",
				tenderId, models.ErrNotFound)
		}
		return nil, fmt.Errorf("reconcile.Engine.GetCanonical: tender %s: %w",
			tenderId, models.ErrLedgerUnavailable)
	}
	record := *storeRecord
	record.Origin = models.OriginStore
	return &record, nil
}

func (e *Engine) degradedListing(storeRecords []models.TenderRecord) Listing {
	records := make([]models.TenderRecord, 0, len(storeRecords)+e.placeholders)
	for _, record := range storeRecords {
		record.Origin = models.OriginStore
		records = append(records, record)
	}
	if e.ledgerConn != nil {
		records = append(records, Placeholders(e.placeholders)...)
	}
	return Listing{Records: records, Degraded: e.ledgerConn != nil}
}

func (e *Engine) ledgerUsable() bool {
	return e.ledgerConn != nil && e.monitor != nil && e.monitor.Available()
}

func degradable(err error) bool {
	return errors.Is(err, models.ErrLedgerUnavailable) || errors.Is(err, models.ErrTimeout)
}
