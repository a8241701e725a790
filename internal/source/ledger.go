package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tenderbridge/internal/config"
	"tenderbridge/internal/ledger"
	"tenderbridge/internal/models"
)

// LedgerConnector reads and mutates the tender program through a
// ledger client, translating between record-store identifiers and
// numeric ledger ids at the boundary.
//
// Reads are retried on transient transport failures and full listings
// are throttled behind a short-lived cache, with concurrent refreshes
// coalesced into one upstream call. Mutations are never retried:
// a mutation whose outcome is unknown must surface, not repeat.
type LedgerConnector struct {
	client   ledger.Client
	resolver *ledger.Resolver
	monitor  *ledger.Monitor

	readTimeout time.Duration
	readRetries int
	throttle    time.Duration

	cacheMu sync.Mutex
	cached  []models.TenderRecord
	fetched time.Time

	flight singleflight.Group
}

func NewLedgerConnector(client ledger.Client, resolver *ledger.Resolver, monitor *ledger.Monitor, cfg config.LedgerConfig) *LedgerConnector {
	return &LedgerConnector{
		client:      client,
		resolver:    resolver,
		monitor:     monitor,
		readTimeout: cfg.ReadTimeout,
		readRetries: cfg.ReadRetries,
		throttle:    cfg.ListThrottle,
	}
}

func (c *LedgerConnector) Name() string {
	return "ledger"
}

//// Reads

func (c *LedgerConnector) List(ctx context.Context) ([]models.TenderRecord, error) {
	c.cacheMu.Lock()
	if c.cached != nil && time.Since(c.fetched) < c.throttle {
		cached := append([]models.TenderRecord(nil), c.cached...)
		c.cacheMu.Unlock()
		return cached, nil
	}
	c.cacheMu.Unlock()

	result, err, _ := c.flight.Do("active", func() (any, error) {
		records, err := c.fetchActive(ctx)
		if err != nil {
			return nil, err
		}
		c.cacheMu.Lock()
		c.cached = records
		c.fetched = time.Now()
		c.cacheMu.Unlock()
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]models.TenderRecord(nil), result.([]models.TenderRecord)...), nil
}

func (c *LedgerConnector) fetchActive(ctx context.Context) ([]models.TenderRecord, error) {
	raw, err := c.read(ctx, ledger.FnGetActiveTenders)
	if err != nil {
		return nil, err
	}

	list := []ledger.TenderData{}
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return nil, fmt.Errorf("source.LedgerConnector.fetchActive: %w", err)
	}

	records := make([]models.TenderRecord, 0, len(list))
	for _, data := range list {
		record, err := c.toRecord(ctx, data)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (c *LedgerConnector) Get(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	idNum, err := c.resolveNum(ctx, tenderId)
	if err != nil {
		return nil, err
	}

	raw, err := c.read(ctx, ledger.FnGetTender, idNum)
	if err != nil {
		return nil, err
	}

	data := ledger.TenderData{}
	err = json.Unmarshal(raw, &data)
	if err != nil {
		return nil, fmt.Errorf("source.LedgerConnector.Get: %w", err)
	}
	record, err := recordFromData(data, tenderId)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("source.LedgerConnector.Get: tender %s: %w", tenderId, models.ErrNotFound)
	}
	return record, err
}

// Bids lists on-ledger bids for a tender. Ledger bids carry no store
// id and report as pending; acceptance is tracked store-side.
func (c *LedgerConnector) Bids(ctx context.Context, tenderId string) ([]models.Bid, error) {
	idNum, err := c.resolveNum(ctx, tenderId)
	if err != nil {
		return nil, err
	}

	raw, err := c.read(ctx, ledger.FnGetTenderBids, idNum)
	if err != nil {
		return nil, err
	}

	list := []ledger.BidData{}
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return nil, fmt.Errorf("source.LedgerConnector.Bids: %w", err)
	}

	bids := make([]models.Bid, 0, len(list))
	for _, data := range list {
		bids = append(bids, models.Bid{
			TenderId: tenderId,
			Bidder:   data.Bidder,
			Amount:   data.Amount,
			Proposal: data.Proposal,
			Status:   models.BidPending,
		})
	}
	return bids, nil
}

func (c *LedgerConnector) read(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.readRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		raw, err := c.client.Read(attemptCtx, fn, args...)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !transient(err) || ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, models.ErrLedgerUnavailable) && c.monitor != nil {
		c.monitor.MarkUnavailable(lastErr.Error())
	}
	return nil, fmt.Errorf("source.LedgerConnector: read %s: %w", fn, lastErr)
}

func transient(err error) bool {
	return errors.Is(err, models.ErrLedgerUnavailable) || errors.Is(err, models.ErrTimeout)
}

//// Mutations

// CreateTender mirrors a store record onto the ledger under its
// resolved id and returns that id. The finalization receipt's created
// fact is checked against the id we asked for; a silent mismatch would
// corrupt every later lookup.
func (c *LedgerConnector) CreateTender(ctx context.Context, actor string, record *models.TenderRecord) (string, error) {
	ledgerId, err := c.resolver.Resolve(ctx, record.Id)
	if err != nil {
		return "", err
	}
	idNum, err := parseLedgerId(ledgerId)
	if err != nil {
		return "", err
	}

	receipt, err := c.send(ctx, actor, ledger.FnCreateTender,
		idNum, record.Title, record.Budget, unixOrZero(record.Deadline),
		unixOrZero(record.ExpiresAt), record.Creator)
	if err != nil {
		return "", err
	}

	fact, ok := receipt.Fact(ledger.FactTenderCreated)
	if ok {
		if got := fact.Value("tenderId"); got != "" && got != ledgerId {
			return "", fmt.Errorf("source.LedgerConnector.CreateTender: %w",
				&models.LedgerRejectedError{
					Reason: fmt.Sprintf("ledger created id %s instead of %s", got, ledgerId),
				})
		}
		return ledgerId, nil
	}
	return ledgerId, c.confirmCreated(ctx, record.Id, idNum)
}

func (c *LedgerConnector) Take(ctx context.Context, actor, tenderId string) error {
	return c.mutateTender(ctx, actor, ledger.FnTakeTender, tenderId)
}

func (c *LedgerConnector) Complete(ctx context.Context, actor, tenderId string) error {
	return c.mutateTender(ctx, actor, ledger.FnCompleteTender, tenderId)
}

func (c *LedgerConnector) Cancel(ctx context.Context, actor, tenderId string) error {
	return c.mutateTender(ctx, actor, ledger.FnCancelTender, tenderId)
}

func (c *LedgerConnector) PlaceBid(ctx context.Context, actor, tenderId string, amount int64, proposal string) error {
	idNum, err := c.resolveNum(ctx, tenderId)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, actor, ledger.FnPlaceBid, idNum, amount, proposal)
	return err
}

func (c *LedgerConnector) mutateTender(ctx context.Context, actor, fn, tenderId string) error {
	idNum, err := c.resolveNum(ctx, tenderId)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, actor, fn, idNum)
	return err
}

func (c *LedgerConnector) send(ctx context.Context, actor, fn string, args ...any) (*ledger.Receipt, error) {
	handle, err := c.client.Send(ctx, fn, actor, args...)
	if err != nil {
		return nil, c.sendErr(fn, err)
	}
	receipt, err := c.client.AwaitFinalization(ctx, handle)
	if err != nil {
		return nil, c.sendErr(fn, err)
	}
	c.invalidate()
	return receipt, nil
}

func (c *LedgerConnector) sendErr(fn string, err error) error {
	err = ledger.MapRevert(err)
	if errors.Is(err, models.ErrLedgerUnavailable) && c.monitor != nil {
		c.monitor.MarkUnavailable(err.Error())
	}
	return fmt.Errorf("source.LedgerConnector: %s: %w", fn, err)
}

// confirmCreated is the fallback when a receipt arrives without the
// created fact: read the entry back and make sure it exists.
func (c *LedgerConnector) confirmCreated(ctx context.Context, label string, idNum int64) error {
	raw, err := c.read(ctx, ledger.FnGetTender, idNum)
	if err != nil {
		return err
	}
	data := ledger.TenderData{}
	err = json.Unmarshal(raw, &data)
	if err != nil {
		return fmt.Errorf("source.LedgerConnector.confirmCreated: %w", err)
	}
	if data.Id == "" || data.Id == ledger.ZeroID {
		return fmt.Errorf("source.LedgerConnector.confirmCreated: tender %s finalized but not readable: %w",
			label, models.ErrLedgerRejected)
	}
	return nil
}

//// Conversion

func (c *LedgerConnector) toRecord(ctx context.Context, data ledger.TenderData) (*models.TenderRecord, error) {
	recordId, err := c.resolver.RecordFor(ctx, data.Id)
	if errors.Is(err, models.ErrNotFound) {
		// No binding: the entry was created directly on the ledger
		// and keeps its numeric id as the canonical one.
		recordId = data.Id
	} else if err != nil {
		return nil, err
	}
	return recordFromData(data, recordId)
}

func recordFromData(data ledger.TenderData, recordId string) (*models.TenderRecord, error) {
	if data.Id == "" || data.Id == ledger.ZeroID {
		return nil, models.ErrNotFound
	}
	status, err := ledger.StatusFromCode(data.Status)
	if err != nil {
		return nil, fmt.Errorf("source: tender %s: %w", data.Id, err)
	}

	return &models.TenderRecord{
		Id:        recordId,
		LedgerId:  data.Id,
		Title:     data.Title,
		Budget:    data.Budget,
		Deadline:  unixTime(data.Deadline),
		ExpiresAt: unixTime(data.ExpiresAt),
		Status:    status,
		Creator:   data.Creator,
		Assignee:  data.Assignee,
		Origin:    models.OriginLedger,
	}, nil
}

func (c *LedgerConnector) resolveNum(ctx context.Context, tenderId string) (int64, error) {
	ledgerId, err := c.resolver.Resolve(ctx, tenderId)
	if err != nil {
		return 0, err
	}
	return parseLedgerId(ledgerId)
}

func (c *LedgerConnector) invalidate() {
	c.cacheMu.Lock()
	c.fetched = time.Time{}
	c.cacheMu.Unlock()
}

func parseLedgerId(ledgerId string) (int64, error) {
	idNum, err := strconv.ParseInt(ledgerId, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("source: ledger id %q is not numeric: %w", ledgerId, err)
	}
	return idNum, nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
