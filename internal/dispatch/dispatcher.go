// Package dispatch routes lifecycle intents across the two backing
// systems: validate against the canonical view, mutate the ledger
// first where it participates, then bring the record store in line,
// and hand back the freshly merged record.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tenderbridge/internal/ledger"
	"tenderbridge/internal/lifecycle"
	"tenderbridge/internal/models"
	"tenderbridge/internal/reconcile"
)

// Store is the slice of the repository the dispatcher writes through.
type Store interface {
	CreateTender(ctx context.Context, tender *models.TenderRecord) error
	UpdateTenderState(ctx context.Context, tenderId string, status models.TenderStatus, assignee string) error
	CreateBid(ctx context.Context, bid *models.Bid) error
	SettleBids(ctx context.Context, tenderId, winner string) error
}

// LedgerSide is the mutation surface of the ledger connector.
type LedgerSide interface {
	CreateTender(ctx context.Context, actor string, record *models.TenderRecord) (string, error)
	Take(ctx context.Context, actor, tenderId string) error
	Complete(ctx context.Context, actor, tenderId string) error
	Cancel(ctx context.Context, actor, tenderId string) error
	PlaceBid(ctx context.Context, actor, tenderId string, amount int64, proposal string) error
}

type Dispatcher struct {
	store   Store
	ledgers LedgerSide
	engine  *reconcile.Engine
	monitor *ledger.Monitor
	guard   *FlightGuard
	now     func() time.Time
}

// NewDispatcher wires the mutation path. ledgers may be nil for
// store-only deployments.
func NewDispatcher(store Store, ledgers LedgerSide, engine *reconcile.Engine, monitor *ledger.Monitor) *Dispatcher {
	return &Dispatcher{
		store:   store,
		ledgers: ledgers,
		engine:  engine,
		monitor: monitor,
		guard:   NewFlightGuard(),
		now:     time.Now,
	}
}

// Dispatch executes one intent end to end. Mutations are never
// retried: any failure after the ledger call leaves the ledger
// authoritative and the next read re-merges, so the caller sees the
// true state either way.
func (d *Dispatcher) Dispatch(ctx context.Context, intent models.Intent) (*models.IntentResult, error) {
	if !models.ValidIntentKind(intent.Kind) {
		return nil, fmt.Errorf("dispatch.Dispatcher.Dispatch: no such intent kind %q", intent.Kind)
	}
	if intent.Kind == models.IntentCreate {
		return d.create(ctx, intent)
	}

	err := d.guard.Acquire(intent.TenderId)
	if err != nil {
		return nil, err
	}
	defer d.guard.Release(intent.TenderId)

	record, err := d.engine.GetCanonical(ctx, intent.TenderId)
	if err != nil {
		return nil, err
	}

	err = lifecycle.Validate(record, intent.Kind, intent.Actor, d.now())
	if err != nil {
		return nil, err
	}

	switch intent.Kind {
	case models.IntentTake:
		return d.take(ctx, intent, record)
	case models.IntentComplete:
		return d.complete(ctx, intent, record)
	case models.IntentCancel:
		return d.cancel(ctx, intent, record)
	case models.IntentClose:
		return d.close(ctx, intent, record)
	case models.IntentBid:
		return d.bid(ctx, intent, record)
	}
	return nil, fmt.Errorf("dispatch.Dispatcher.Dispatch: no such intent kind %q", intent.Kind)
}

//// Create

// create writes the store record first and mirrors it to the ledger
// when one is reachable. A failed mirror does not undo the create: the
// record stays store-only and lazy migration picks it up on its first
// lifecycle action.
func (d *Dispatcher) create(ctx context.Context, intent models.Intent) (*models.IntentResult, error) {
	if intent.Draft == nil {
		return nil, fmt.Errorf("dispatch.Dispatcher.create: intent carries no draft")
	}

	draft := *intent.Draft
	record := &models.TenderRecord{
		Id:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Budget:      draft.Budget,
		Deadline:    draft.Deadline,
		ExpiresAt:   draft.ExpiresAt,
		Status:      models.TenderOpen,
		Creator:     intent.Actor,
		Cargo:       draft.Cargo,
		Origin:      models.OriginStore,
	}

	err := d.store.CreateTender(ctx, record)
	if err != nil {
		return nil, err
	}

	if !d.ledgerUsable() {
		return &models.IntentResult{Record: *record}, nil
	}

	ledgerId, err := d.ledgers.CreateTender(ctx, intent.Actor, record)
	if err != nil {
		log.Printf("tender %s created store-only, mirror failed: %s", record.Id, err)
		return &models.IntentResult{Record: *record}, nil
	}

	record.LedgerId = ledgerId
	record.Origin = models.OriginBoth
	return &models.IntentResult{Record: *record}, nil
}

//// Lifecycle actions

func (d *Dispatcher) take(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	migrated := false
	if d.ledgerUsable() {
		var err error
		migrated, err = d.ensureOnLedger(ctx, intent.Actor, record)
		if err != nil {
			return nil, err
		}
		err = d.ledgers.Take(ctx, intent.Actor, record.Id)
		if err != nil {
			return nil, err
		}
	} else if err := d.requireOffline(record); err != nil {
		return nil, err
	}

	d.applyStore(ctx, intent, record)
	if storeBacked(record) {
		err := d.store.SettleBids(ctx, record.Id, intent.Actor)
		if err != nil {
			log.Printf("tender %s: bid settlement failed: %s", record.Id, err)
		}
	}
	return d.result(ctx, intent, record, migrated, false)
}

func (d *Dispatcher) complete(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	migrated := false
	if d.ledgerUsable() {
		var err error
		migrated, err = d.ensureOnLedger(ctx, intent.Actor, record)
		if err != nil {
			return nil, err
		}
		if migrated {
			// Replay the award so the migrated entry reaches the
			// state the store already records. The completing actor
			// is the assignee, so the signature is theirs to give.
			err = d.ledgers.Take(ctx, intent.Actor, record.Id)
			if err != nil {
				return nil, err
			}
		}
		err = d.ledgers.Complete(ctx, intent.Actor, record.Id)
		if err != nil {
			return nil, err
		}
	} else if err := d.requireOffline(record); err != nil {
		return nil, err
	}

	d.applyStore(ctx, intent, record)
	return d.result(ctx, intent, record, migrated, false)
}

func (d *Dispatcher) cancel(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	migrated := false
	if d.ledgerUsable() {
		var err error
		migrated, err = d.ensureOnLedger(ctx, intent.Actor, record)
		if err != nil {
			return nil, err
		}
		err = d.ledgers.Cancel(ctx, intent.Actor, record.Id)
		if err != nil {
			return nil, err
		}
	} else if err := d.requireOffline(record); err != nil {
		return nil, err
	}

	d.applyStore(ctx, intent, record)
	return d.result(ctx, intent, record, migrated, false)
}

// close ends a tender without an award. The ledger program exposes no
// such transition, so this is a store-side write on every deployment.
func (d *Dispatcher) close(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	if !storeBacked(record) {
		return nil, fmt.Errorf("dispatch: tender %s lives only on the ledger and cannot be closed: %w",
			record.Id, models.ErrInvalidTransition)
	}

	d.applyStore(ctx, intent, record)
	return d.result(ctx, intent, record, false, false)
}

// bid places a bid where the deployment allows. Programs without bid
// support degrade the intent to a take at the tender's budget, flagged
// so the caller knows what actually happened.
func (d *Dispatcher) bid(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	if intent.Bid == nil {
		return nil, fmt.Errorf("dispatch.Dispatcher.bid: intent carries no bid")
	}

	if d.ledgerUsable() && !d.monitor.Capabilities().Bids {
		return d.degradedBid(ctx, intent, record)
	}

	migrated := false
	if d.ledgerUsable() {
		var err error
		migrated, err = d.ensureOnLedger(ctx, intent.Actor, record)
		if err != nil {
			return nil, err
		}
		err = d.ledgers.PlaceBid(ctx, intent.Actor, record.Id, intent.Bid.Amount, intent.Bid.Proposal)
		if err != nil {
			return nil, err
		}
	} else if err := d.requireOffline(record); err != nil {
		return nil, err
	}

	d.recordBid(ctx, intent, record)
	return d.result(ctx, intent, record, migrated, false)
}

// degradedBid claims the tender outright. The bid is still recorded
// store-side and settles as accepted, matching what the take did.
func (d *Dispatcher) degradedBid(ctx context.Context, intent models.Intent, record *models.TenderRecord) (*models.IntentResult, error) {
	migrated, err := d.ensureOnLedger(ctx, intent.Actor, record)
	if err != nil {
		return nil, err
	}
	err = d.ledgers.Take(ctx, intent.Actor, record.Id)
	if err != nil {
		return nil, err
	}

	d.recordBid(ctx, intent, record)
	takeIntent := intent
	takeIntent.Kind = models.IntentTake
	d.applyStore(ctx, takeIntent, record)
	if storeBacked(record) {
		err = d.store.SettleBids(ctx, record.Id, intent.Actor)
		if err != nil {
			log.Printf("tender %s: bid settlement failed: %s", record.Id, err)
		}
	}
	return d.result(ctx, takeIntent, record, migrated, true)
}

//// Shared plumbing

// ensureOnLedger lazily migrates a store-only record before its first
// on-ledger action. Migration failures, identifier collisions
// included, block the action: mutating a tender the ledger was meant
// to hold but does not would fork its history.
func (d *Dispatcher) ensureOnLedger(ctx context.Context, actor string, record *models.TenderRecord) (bool, error) {
	if record.OnLedger() {
		return false, nil
	}

	ledgerId, err := d.ledgers.CreateTender(ctx, actor, record)
	if err != nil {
		return false, err
	}
	record.LedgerId = ledgerId
	log.Printf("tender %s migrated to ledger id %s", record.Id, ledgerId)
	return true, nil
}

// requireOffline gates local mutations while the ledger is unusable.
// Only records that were never mirrored may move store-side; anything
// with a binding might be live on the ledger, and guessing is how the
// two systems diverge.
func (d *Dispatcher) requireOffline(record *models.TenderRecord) error {
	if d.ledgers == nil {
		return nil
	}
	if record.LedgerId != "" || record.OnLedger() {
		return fmt.Errorf("dispatch: tender %s requires the ledger: %w",
			record.Id, models.ErrLedgerUnavailable)
	}
	return nil
}

// applyStore lands the validated outcome in the record store. After a
// successful ledger mutation this must not fail the request: the
// ledger already holds the truth and the next merge reads it back.
func (d *Dispatcher) applyStore(ctx context.Context, intent models.Intent, record *models.TenderRecord) {
	if !storeBacked(record) {
		return
	}
	status, assignee := lifecycle.Outcome(record, intent.Kind, intent.Actor)
	err := d.store.UpdateTenderState(ctx, record.Id, status, assignee)
	if err != nil {
		log.Printf("tender %s: store update after %s failed: %s", record.Id, intent.Kind, err)
	}
}

func (d *Dispatcher) recordBid(ctx context.Context, intent models.Intent, record *models.TenderRecord) {
	if !storeBacked(record) {
		return
	}
	bid := &models.Bid{
		Id:       uuid.NewString(),
		TenderId: record.Id,
		Bidder:   intent.Actor,
		Amount:   intent.Bid.Amount,
		Proposal: intent.Bid.Proposal,
		Status:   models.BidPending,
	}
	err := d.store.CreateBid(ctx, bid)
	if err != nil {
		log.Printf("tender %s: recording bid failed: %s", record.Id, err)
	}
}

// result re-reads the canonical record so the caller sees the merged
// post-action state. If the re-read fails the locally computed outcome
// stands in.
func (d *Dispatcher) result(ctx context.Context, intent models.Intent, record *models.TenderRecord, migrated, degraded bool) (*models.IntentResult, error) {
	result := &models.IntentResult{Migrated: migrated, CapabilityDegraded: degraded}

	fresh, err := d.engine.GetCanonical(ctx, intent.TenderId)
	if err != nil {
		updated := *record
		updated.Status, updated.Assignee = lifecycle.Outcome(record, intent.Kind, intent.Actor)
		if migrated {
			updated.Origin = models.OriginBoth
		}
		result.Record = updated
		return result, nil
	}
	result.Record = *fresh
	return result, nil
}

func (d *Dispatcher) ledgerUsable() bool {
	return d.ledgers != nil && d.monitor != nil && d.monitor.Available()
}

func storeBacked(record *models.TenderRecord) bool {
	return record.Origin == models.OriginStore || record.Origin == models.OriginBoth
}
