// Package ledgersim is an in-process stand-in for a real ledger
// network, used by the local dev network and by tests. It keeps the
// program's state in sqlite and enforces the same guards, with the
// same revert messages, as the deployed tender program. Finalization
// is synchronous: every accepted call has its receipt ready before
// Send returns.
package ledgersim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go.uber.org/atomic"

	"tenderbridge/internal/ledger"
	"tenderbridge/internal/models"

	_ "embed"
)

//go:embed schema.sql
var schema string

// Program status codes. The sim owns the encoding; ledger.StatusFromCode
// mirrors it on the bridge side.
const (
	statusOpen = iota
	statusClosed
	statusAwarded
	statusCompleted
	statusCancelled
)

type Sim struct {
	db      *sql.DB
	chainID string
	program string

	writeMu sync.Mutex

	receiptMu sync.Mutex
	receipts  map[string]*ledger.Receipt
	refs      atomic.Int64

	failing atomic.Bool
	nowMu   sync.Mutex
	now     func() time.Time
}

func Open(path, chainID, program string) (*Sim, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledgersim.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledgersim.Open: %w", err)
	}

	return &Sim{
		db:       db,
		chainID:  chainID,
		program:  program,
		receipts: map[string]*ledger.Receipt{},
		now:      time.Now,
	}, nil
}

func (s *Sim) Close() error {
	return s.db.Close()
}

// SetFailing flips simulated transport loss: every call fails with an
// unreachable-ledger error until cleared.
func (s *Sim) SetFailing(failing bool) {
	s.failing.Store(failing)
}

// SetNow overrides the sim's clock for expiry guards.
func (s *Sim) SetNow(now func() time.Time) {
	s.nowMu.Lock()
	defer s.nowMu.Unlock()
	s.now = now
}

func (s *Sim) clock() time.Time {
	s.nowMu.Lock()
	defer s.nowMu.Unlock()
	return s.now()
}

//// ledger.Client

func (s *Sim) ChainID(ctx context.Context) (string, error) {
	if err := s.reachable(); err != nil {
		return "", err
	}
	return s.chainID, nil
}

func (s *Sim) GetCode(ctx context.Context, address string) (string, error) {
	if err := s.reachable(); err != nil {
		return "", err
	}
	if address != s.program {
		return "0x", nil
	}
	return "0x74656e6465727300", nil
}

func (s *Sim) Functions(ctx context.Context, address string) ([]string, error) {
	if err := s.reachable(); err != nil {
		return nil, err
	}
	if address != s.program {
		return nil, nil
	}
	return append(ledger.RequiredFunctions(), ledger.BidFunctions()...), nil
}

func (s *Sim) Read(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	if err := s.reachable(); err != nil {
		return nil, err
	}

	switch fn {
	case ledger.FnGetTender:
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		return s.readTender(ctx, id)
	case ledger.FnGetActiveTenders:
		return s.readActiveTenders(ctx)
	case ledger.FnGetTenderCount:
		return s.readTenderCount(ctx)
	case ledger.FnGetTenderBids:
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		return s.readTenderBids(ctx, id)
	}
	return nil, &ledger.RevertError{Message: "unknown function " + fn}
}

func (s *Sim) Send(ctx context.Context, fn string, actor string, args ...any) (ledger.PendingHandle, error) {
	if err := s.reachable(); err != nil {
		return ledger.PendingHandle{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		fact ledger.Fact
		err  error
	)
	switch fn {
	case ledger.FnCreateTender:
		fact, err = s.createTender(ctx, actor, args)
	case ledger.FnTakeTender:
		fact, err = s.takeTender(ctx, actor, args)
	case ledger.FnCompleteTender:
		fact, err = s.completeTender(ctx, actor, args)
	case ledger.FnCancelTender:
		fact, err = s.cancelTender(ctx, actor, args)
	case ledger.FnPlaceBid:
		fact, err = s.placeBid(ctx, actor, args)
	default:
		err = &ledger.RevertError{Message: "unknown function " + fn}
	}
	if err != nil {
		return ledger.PendingHandle{}, err
	}

	ref := "sim-" + strconv.FormatInt(s.refs.Inc(), 10)
	s.receiptMu.Lock()
	s.receipts[ref] = &ledger.Receipt{Ref: ref, Facts: []ledger.Fact{fact}}
	s.receiptMu.Unlock()
	return ledger.PendingHandle{Ref: ref}, nil
}

func (s *Sim) AwaitFinalization(ctx context.Context, handle ledger.PendingHandle) (*ledger.Receipt, error) {
	if err := s.reachable(); err != nil {
		return nil, err
	}

	s.receiptMu.Lock()
	receipt, ok := s.receipts[handle.Ref]
	s.receiptMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ledgersim: unknown ref %q: %w", handle.Ref, models.ErrNotFound)
	}
	return receipt, nil
}

//// Reads

func (s *Sim) readTender(ctx context.Context, id int64) (json.RawMessage, error) {
	row, err := s.loadTender(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return json.Marshal(ledger.TenderData{Id: ledger.ZeroID})
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(row)
}

func (s *Sim) readActiveTenders(ctx context.Context) (json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, budget, deadline, expires_at, status, creator, assignee
		 FROM tenders WHERE status = ? ORDER BY id`, statusOpen)
	if err != nil {
		return nil, simErr("readActiveTenders", err)
	}
	defer rows.Close()

	tenders := []ledger.TenderData{}
	for rows.Next() {
		data, err := scanTender(rows)
		if err != nil {
			return nil, simErr("readActiveTenders", err)
		}
		tenders = append(tenders, data)
	}
	if err := rows.Err(); err != nil {
		return nil, simErr("readActiveTenders", err)
	}
	return json.Marshal(tenders)
}

func (s *Sim) readTenderCount(ctx context.Context) (json.RawMessage, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenders`).Scan(&count)
	if err != nil {
		return nil, simErr("readTenderCount", err)
	}
	return json.Marshal(count)
}

func (s *Sim) readTenderBids(ctx context.Context, id int64) (json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tender_id, bidder, amount, proposal FROM bids WHERE tender_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, simErr("readTenderBids", err)
	}
	defer rows.Close()

	bids := []ledger.BidData{}
	for rows.Next() {
		var (
			bid      ledger.BidData
			tenderID int64
		)
		err = rows.Scan(&tenderID, &bid.Bidder, &bid.Amount, &bid.Proposal)
		if err != nil {
			return nil, simErr("readTenderBids", err)
		}
		bid.TenderId = strconv.FormatInt(tenderID, 10)
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, simErr("readTenderBids", err)
	}
	return json.Marshal(bids)
}

//// Mutations

func (s *Sim) createTender(ctx context.Context, actor string, args []any) (ledger.Fact, error) {
	id, err := argInt(args, 0)
	if err != nil {
		return ledger.Fact{}, err
	}
	title, err := argString(args, 1)
	if err != nil {
		return ledger.Fact{}, err
	}
	budget, err := argInt(args, 2)
	if err != nil {
		return ledger.Fact{}, err
	}
	deadline, err := argInt(args, 3)
	if err != nil {
		return ledger.Fact{}, err
	}
	expiresAt, err := argInt(args, 4)
	if err != nil {
		return ledger.Fact{}, err
	}
	// Migrated entries name their original creator; a direct create
	// belongs to the signer.
	creator := actor
	if len(args) > 5 {
		creator, err = argString(args, 5)
		if err != nil {
			return ledger.Fact{}, err
		}
	}

	_, err = s.loadTender(ctx, id)
	if err == nil {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender already exists"}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ledger.Fact{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenders (id, title, budget, deadline, expires_at, status, creator)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, title, budget, deadline, expiresAt, statusOpen, creator)
	if err != nil {
		return ledger.Fact{}, simErr("createTender", err)
	}

	return ledger.Fact{
		Name: ledger.FactTenderCreated,
		Values: map[string]string{
			"tenderId": strconv.FormatInt(id, 10),
			"creator":  creator,
		},
	}, nil
}

func (s *Sim) takeTender(ctx context.Context, actor string, args []any) (ledger.Fact, error) {
	tender, err := s.guardTender(ctx, args)
	if err != nil {
		return ledger.Fact{}, err
	}
	if tender.Status != statusOpen {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender is not open"}
	}
	if s.expired(tender) {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender expired"}
	}
	if tender.Creator == actor {
		return ledger.Fact{}, &ledger.RevertError{Message: "Cannot act on own tender"}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tenders SET status = ?, assignee = ? WHERE id = ?`,
		statusAwarded, actor, tender.id)
	if err != nil {
		return ledger.Fact{}, simErr("takeTender", err)
	}

	return ledger.Fact{
		Name: ledger.FactTenderTaken,
		Values: map[string]string{
			"tenderId": strconv.FormatInt(tender.id, 10),
			"actor":    actor,
		},
	}, nil
}

func (s *Sim) completeTender(ctx context.Context, actor string, args []any) (ledger.Fact, error) {
	tender, err := s.guardTender(ctx, args)
	if err != nil {
		return ledger.Fact{}, err
	}
	if tender.Status != statusAwarded {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender is not open"}
	}
	if tender.Assignee != actor {
		return ledger.Fact{}, &ledger.RevertError{Message: "Not the assigned carrier"}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tenders SET status = ? WHERE id = ?`, statusCompleted, tender.id)
	if err != nil {
		return ledger.Fact{}, simErr("completeTender", err)
	}

	return ledger.Fact{
		Name: ledger.FactTenderCompleted,
		Values: map[string]string{
			"tenderId": strconv.FormatInt(tender.id, 10),
			"actor":    actor,
		},
	}, nil
}

func (s *Sim) cancelTender(ctx context.Context, actor string, args []any) (ledger.Fact, error) {
	tender, err := s.guardTender(ctx, args)
	if err != nil {
		return ledger.Fact{}, err
	}
	if tender.Status != statusOpen {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender is not open"}
	}
	if tender.Creator != actor {
		return ledger.Fact{}, &ledger.RevertError{Message: "Not the tender creator"}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tenders SET status = ? WHERE id = ?`, statusCancelled, tender.id)
	if err != nil {
		return ledger.Fact{}, simErr("cancelTender", err)
	}

	return ledger.Fact{
		Name: ledger.FactTenderCancelled,
		Values: map[string]string{
			"tenderId": strconv.FormatInt(tender.id, 10),
			"actor":    actor,
		},
	}, nil
}

func (s *Sim) placeBid(ctx context.Context, actor string, args []any) (ledger.Fact, error) {
	tender, err := s.guardTender(ctx, args)
	if err != nil {
		return ledger.Fact{}, err
	}
	amount, err := argInt(args, 1)
	if err != nil {
		return ledger.Fact{}, err
	}
	proposal, _ := argString(args, 2)

	if tender.Status != statusOpen {
		return ledger.Fact{}, &ledger.RevertError{Message: "Bidding closed"}
	}
	if s.expired(tender) {
		return ledger.Fact{}, &ledger.RevertError{Message: "Tender expired"}
	}
	if tender.Creator == actor {
		return ledger.Fact{}, &ledger.RevertError{Message: "Cannot act on own tender"}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bids (tender_id, bidder, amount, proposal) VALUES (?, ?, ?, ?)`,
		tender.id, actor, amount, proposal)
	if err != nil {
		return ledger.Fact{}, simErr("placeBid", err)
	}

	return ledger.Fact{
		Name: ledger.FactBidPlaced,
		Values: map[string]string{
			"tenderId": strconv.FormatInt(tender.id, 10),
			"bidder":   actor,
			"amount":   strconv.FormatInt(amount, 10),
		},
	}, nil
}

//// Helpers

type tenderRow struct {
	ledger.TenderData
	id int64
}

func (s *Sim) guardTender(ctx context.Context, args []any) (tenderRow, error) {
	id, err := argInt(args, 0)
	if err != nil {
		return tenderRow{}, err
	}
	tender, err := s.loadTender(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return tenderRow{}, &ledger.RevertError{Message: "Tender does not exist"}
	}
	if err != nil {
		return tenderRow{}, err
	}
	return tender, nil
}

func (s *Sim) loadTender(ctx context.Context, id int64) (tenderRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, budget, deadline, expires_at, status, creator, assignee
		 FROM tenders WHERE id = ?`, id)
	data, err := scanTender(row)
	if err != nil {
		return tenderRow{}, err
	}
	id, _ = strconv.ParseInt(data.Id, 10, 64)
	return tenderRow{TenderData: data, id: id}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTender(row scannable) (ledger.TenderData, error) {
	var (
		data ledger.TenderData
		id   int64
	)
	err := row.Scan(&id, &data.Title, &data.Budget, &data.Deadline,
		&data.ExpiresAt, &data.Status, &data.Creator, &data.Assignee)
	if err != nil {
		return ledger.TenderData{}, err
	}
	data.Id = strconv.FormatInt(id, 10)
	return data, nil
}

func (s *Sim) expired(tender tenderRow) bool {
	return tender.ExpiresAt != 0 && tender.ExpiresAt <= s.clock().Unix()
}

func (s *Sim) reachable() error {
	if s.failing.Load() {
		return fmt.Errorf("ledgersim: simulated outage: %w", models.ErrLedgerUnavailable)
	}
	return nil
}

func simErr(op string, err error) error {
	return fmt.Errorf("ledgersim.%s: %s: %w", op, err, models.ErrLedgerUnavailable)
}

func argInt(args []any, i int) (int64, error) {
	if i >= len(args) {
		return 0, &ledger.RevertError{Message: fmt.Sprintf("missing argument %d", i)}
	}
	switch v := args[i].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return n, nil
		}
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, &ledger.RevertError{Message: fmt.Sprintf("argument %d is not numeric", i)}
}

func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", &ledger.RevertError{Message: fmt.Sprintf("missing argument %d", i)}
	}
	v, ok := args[i].(string)
	if !ok {
		return "", &ledger.RevertError{Message: fmt.Sprintf("argument %d is not a string", i)}
	}
	return v, nil
}
