// Package service exposes the bridge core: one facade over the
// reconciliation engine, the lifecycle dispatcher, the health monitor
// and the live event feed. A Core is bound to one signing session and
// one network at a time; Reset rebinds it when the agent switches.
package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"tenderbridge/internal/config"
	"tenderbridge/internal/dispatch"
	"tenderbridge/internal/expiry"
	"tenderbridge/internal/ledger"
	"tenderbridge/internal/ledgersim"
	"tenderbridge/internal/models"
	"tenderbridge/internal/pricing"
	"tenderbridge/internal/reconcile"
	"tenderbridge/internal/repository"
	"tenderbridge/internal/source"
)

type Core struct {
	conf      *config.Config
	catalog   *config.NetworkCatalog
	repo      *repository.Repository
	monitor   *ledger.Monitor
	tracker   *expiry.Tracker
	estimator *pricing.Estimator
	hub       *EventHub

	mu         sync.RWMutex
	account    string
	network    config.Network
	engine     *reconcile.Engine
	dispatcher *dispatch.Dispatcher
	ledgerConn *source.LedgerConnector
	closer     io.Closer
}

func NewCore(conf *config.Config, catalog *config.NetworkCatalog, repo *repository.Repository) (*Core, error) {
	network, ok := catalog.ByName(conf.Network)
	if !ok {
		return nil, fmt.Errorf("service.NewCore: no such network %q", conf.Network)
	}

	core := &Core{
		conf:      conf,
		catalog:   catalog,
		repo:      repo,
		monitor:   ledger.NewMonitor(nil, network, conf.LedgerConfig),
		tracker:   expiry.NewTracker(nil),
		estimator: pricing.NewEstimator(conf.EstimatorURL, conf.ReadTimeout),
		hub:       NewEventHub(),
	}

	err := core.bind(network)
	if err != nil {
		return nil, fmt.Errorf("service.NewCore: %w", err)
	}
	return core, nil
}

// bind builds the per-network wiring: ledger client, connectors,
// engine and dispatcher. Callers other than NewCore hold c.mu.
func (c *Core) bind(network config.Network) error {
	var (
		client ledger.Client
		closer io.Closer
	)
	switch {
	case c.conf.Disabled:
	case network.Dev:
		sim, err := ledgersim.Open(c.conf.SimPath, network.ChainID, network.ProgramAddress)
		if err != nil {
			return err
		}
		client, closer = sim, sim
	default:
		if network.Endpoint == "" {
			return fmt.Errorf("network %q has no endpoint", network.Name)
		}
		client = ledger.NewAgentClient(network.Endpoint, network.ProgramAddress, c.conf.ReadTimeout)
	}

	storeConn := source.NewStoreConnector(c.repo)
	resolver := ledger.NewResolver(c.repo)

	var (
		ledgerConn *source.LedgerConnector
		readSide   source.Connector
		mutateSide dispatch.LedgerSide
	)
	if client != nil {
		ledgerConn = source.NewLedgerConnector(client, resolver, c.monitor, c.conf.LedgerConfig)
		readSide = ledgerConn
		mutateSide = ledgerConn
	}

	engine := reconcile.NewEngine(storeConn, readSide, c.monitor, c.conf.Placeholders)
	dispatcher := dispatch.NewDispatcher(c.repo, mutateSide, engine, c.monitor)

	if c.closer != nil {
		err := c.closer.Close()
		if err != nil {
			log.Printf("closing previous ledger client: %s", err)
		}
	}

	c.network = network
	c.engine = engine
	c.dispatcher = dispatcher
	c.ledgerConn = ledgerConn
	c.closer = closer
	c.monitor.Rebind(client, network)
	return nil
}

// Start launches the background work: the initial health probe and the
// once-a-second board tick. Both exit with ctx.
func (c *Core) Start(ctx context.Context) {
	go func() {
		c.monitor.Refresh(ctx)
		c.hub.Publish(Event{Type: EventHealth, At: time.Now()})
	}()
	go c.tracker.Run(ctx, time.Second, func(now time.Time) {
		c.hub.Publish(Event{Type: EventTick, At: now})
	})
}

func (c *Core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

//// Reads

// Listing is the decorated canonical board.
type Listing struct {
	Records  []models.TenderRecord `json:"tenders"`
	Degraded bool                  `json:"degraded"`
}

func (c *Core) ListTenders(ctx context.Context) (Listing, error) {
	c.mu.RLock()
	engine := c.engine
	c.mu.RUnlock()

	listing, err := engine.ListCanonical(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("service.Core.ListTenders: %w", err)
	}
	return Listing{
		Records:  c.tracker.Decorate(listing.Records),
		Degraded: listing.Degraded,
	}, nil
}

func (c *Core) GetTender(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	c.mu.RLock()
	engine := c.engine
	c.mu.RUnlock()

	record, err := engine.GetCanonical(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("service.Core.GetTender: %w", err)
	}
	c.tracker.DecorateOne(record)
	return record, nil
}

// ListBids merges both sides' bids for one tender. Ledger bids join in
// only when the deployment declares bid support; a failing ledger read
// degrades to the store's view rather than failing the listing.
func (c *Core) ListBids(ctx context.Context, tenderId string) ([]models.Bid, error) {
	record, err := c.GetTender(ctx, tenderId)
	if err != nil {
		return nil, err
	}

	storeBids := []models.Bid{}
	if record.Origin == models.OriginStore || record.Origin == models.OriginBoth {
		storeBids, err = c.repo.GetBids(ctx, tenderId)
		if err != nil {
			return nil, fmt.Errorf("service.Core.ListBids: %w", err)
		}
	}

	c.mu.RLock()
	ledgerConn := c.ledgerConn
	c.mu.RUnlock()

	if ledgerConn == nil || !c.monitor.Available() || !c.monitor.Capabilities().Bids || !record.OnLedger() {
		return storeBids, nil
	}

	ledgerBids, err := ledgerConn.Bids(ctx, tenderId)
	if err != nil {
		log.Printf("bid listing for %s degraded: %s", tenderId, err)
		return storeBids, nil
	}
	return reconcile.MergeBids(storeBids, ledgerBids), nil
}

//// Mutations

func (c *Core) Dispatch(ctx context.Context, intent models.Intent) (*models.IntentResult, error) {
	c.mu.RLock()
	dispatcher := c.dispatcher
	c.mu.RUnlock()

	if intent.Kind == models.IntentCreate && intent.Draft != nil && intent.Draft.Budget == 0 {
		c.prefillBudget(ctx, intent.Draft)
	}

	result, err := dispatcher.Dispatch(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("service.Core.Dispatch: %w", err)
	}

	c.tracker.DecorateOne(&result.Record)
	c.hub.Publish(Event{
		Type:     EventTender,
		TenderId: result.Record.Id,
		Action:   string(intent.Kind),
		At:       time.Now(),
	})
	return result, nil
}

//// Health and session

type HealthReport struct {
	Store   string              `json:"store"`
	Ledger  ledger.HealthStatus `json:"ledger"`
	Network string              `json:"network"`
	Account string              `json:"account,omitempty"`
}

func (c *Core) Health(ctx context.Context) HealthReport {
	report := HealthReport{Store: "ok", Ledger: c.monitor.Status()}

	err := c.repo.Ping(ctx)
	if err != nil {
		report.Store = err.Error()
	}

	c.mu.RLock()
	report.Network = c.network.Name
	report.Account = c.account
	c.mu.RUnlock()
	return report
}

func (c *Core) RefreshHealth(ctx context.Context) ledger.HealthStatus {
	status := c.monitor.Refresh(ctx)
	c.hub.Publish(Event{Type: EventHealth, At: time.Now()})
	return status
}

// Reset rebinds the core to a new signing session. An empty network
// keeps the current one; either way the bind bumps the monitor epoch,
// so probes and results from the old session are discarded.
func (c *Core) Reset(ctx context.Context, account, networkName string) error {
	c.mu.Lock()
	network := c.network
	if networkName != "" {
		named, ok := c.catalog.ByName(networkName)
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("service.Core.Reset: no such network %q: %w",
				networkName, models.ErrNotFound)
		}
		network = named
	}

	c.account = account
	err := c.bind(network)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("service.Core.Reset: %w", err)
	}

	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		c.monitor.Refresh(refreshCtx)
		c.hub.Publish(Event{Type: EventHealth, At: time.Now()})
	}()
	return nil
}

func (c *Core) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

//// Extras

func (c *Core) Estimate(ctx context.Context, cargo models.CargoAttributes) (pricing.Estimate, error) {
	estimate, err := c.estimator.Estimate(ctx, cargo)
	if err != nil {
		return pricing.Estimate{}, fmt.Errorf("service.Core.Estimate: %w", err)
	}
	return estimate, nil
}

// prefillBudget suggests a starting budget for drafts submitted
// without one. A zero budget is legal, so estimation failure leaves
// the draft as it came in.
func (c *Core) prefillBudget(ctx context.Context, draft *models.TenderDraft) {
	estimate, err := c.estimator.Estimate(ctx, draft.Cargo)
	if err != nil {
		log.Printf("budget prefill skipped: %s", err)
		return
	}
	draft.Budget = int64(math.Round(estimate.PredictedPrice * 100))
}

func (c *Core) Subscribe() (<-chan Event, func()) {
	return c.hub.Subscribe()
}

func (c *Core) RegisterParty(ctx context.Context, party *models.Party) error {
	err := c.repo.CreateParty(ctx, party)
	if err != nil {
		return fmt.Errorf("service.Core.RegisterParty: %w", err)
	}
	return nil
}

func (c *Core) PartyByUsername(ctx context.Context, username string) (*models.Party, error) {
	party, err := c.repo.GetPartyByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service.Core.PartyByUsername: %w", err)
	}
	return party, nil
}
