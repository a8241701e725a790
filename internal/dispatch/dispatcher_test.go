package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbridge/internal/config"
	"tenderbridge/internal/ledger"
	"tenderbridge/internal/models"
	"tenderbridge/internal/reconcile"
	"tenderbridge/internal/source"
)

//// Fakes

// fakeStore backs both the dispatcher's write surface and the store
// connector, standing in for the repository.
type fakeStore struct {
	mu      sync.Mutex
	order   []string
	tenders map[string]*models.TenderRecord
	bids    map[string][]*models.Bid
	winners map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenders: map[string]*models.TenderRecord{},
		bids:    map[string][]*models.Bid{},
		winners: map[string]string{},
	}
}

func (s *fakeStore) CreateTender(ctx context.Context, tender *models.TenderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := *tender
	record.CreatedAt = time.Now()
	s.tenders[record.Id] = &record
	s.order = append(s.order, record.Id)
	return nil
}

func (s *fakeStore) UpdateTenderState(ctx context.Context, tenderId string, status models.TenderStatus, assignee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tenders[tenderId]
	if !ok {
		return fmt.Errorf("fake store: tender %s: %w", tenderId, models.ErrNotFound)
	}
	record.Status = status
	record.Assignee = assignee
	return nil
}

func (s *fakeStore) CreateBid(ctx context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *bid
	s.bids[bid.TenderId] = append(s.bids[bid.TenderId], &stored)
	return nil
}

func (s *fakeStore) SettleBids(ctx context.Context, tenderId, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winners[tenderId] = winner
	for _, bid := range s.bids[tenderId] {
		if bid.Status != models.BidPending {
			continue
		}
		if bid.Bidder == winner {
			bid.Status = models.BidAccepted
		} else {
			bid.Status = models.BidRejected
		}
	}
	return nil
}

func (s *fakeStore) GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.TenderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]models.TenderRecord, 0, len(s.order))
	for _, id := range s.order {
		record := *s.tenders[id]
		record.Origin = models.OriginStore
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) GetTender(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tenders[tenderId]
	if !ok {
		return nil, fmt.Errorf("fake store: tender %s: %w", tenderId, models.ErrNotFound)
	}
	copied := *record
	copied.Origin = models.OriginStore
	return &copied, nil
}

func (s *fakeStore) row(tenderId string) models.TenderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tenders[tenderId]
}

func (s *fakeStore) bindRow(tenderId, ledgerId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenders[tenderId].LedgerId = ledgerId
}

func (s *fakeStore) rowBids(tenderId string) []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	bids := make([]models.Bid, 0, len(s.bids[tenderId]))
	for _, bid := range s.bids[tenderId] {
		bids = append(bids, *bid)
	}
	return bids
}

// fakeLedger plays the ledger connector: the dispatcher's mutation
// surface plus the engine's read surface, keyed by record id like the
// real connector.
type fakeLedger struct {
	mu      sync.Mutex
	store   *fakeStore
	records map[string]*models.TenderRecord
	nextId  int64
	ops     []string

	createErr error
	takeErr   error

	enteredTake chan struct{}
	blockTake   chan struct{}
}

func newFakeLedger(store *fakeStore) *fakeLedger {
	return &fakeLedger{
		store:   store,
		records: map[string]*models.TenderRecord{},
		nextId:  70000,
	}
}

func (l *fakeLedger) CreateTender(ctx context.Context, actor string, record *models.TenderRecord) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "create")
	if l.createErr != nil {
		return "", l.createErr
	}
	l.nextId++
	ledgerId := strconv.FormatInt(l.nextId, 10)
	mirrored := *record
	mirrored.LedgerId = ledgerId
	mirrored.Origin = models.OriginLedger
	l.records[record.Id] = &mirrored
	if l.store != nil {
		l.store.bindRow(record.Id, ledgerId)
	}
	return ledgerId, nil
}

func (l *fakeLedger) Take(ctx context.Context, actor, tenderId string) error {
	if l.blockTake != nil {
		if l.enteredTake != nil {
			select {
			case l.enteredTake <- struct{}{}:
			default:
			}
		}
		<-l.blockTake
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "take")
	if l.takeErr != nil {
		return l.takeErr
	}
	record, ok := l.records[tenderId]
	if !ok {
		return fmt.Errorf("fake ledger: tender %s: %w", tenderId, models.ErrNotFound)
	}
	record.Status = models.TenderAwarded
	record.Assignee = actor
	return nil
}

func (l *fakeLedger) Complete(ctx context.Context, actor, tenderId string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "complete")
	record, ok := l.records[tenderId]
	if !ok {
		return fmt.Errorf("fake ledger: tender %s: %w", tenderId, models.ErrNotFound)
	}
	record.Status = models.TenderCompleted
	return nil
}

func (l *fakeLedger) Cancel(ctx context.Context, actor, tenderId string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "cancel")
	record, ok := l.records[tenderId]
	if !ok {
		return fmt.Errorf("fake ledger: tender %s: %w", tenderId, models.ErrNotFound)
	}
	record.Status = models.TenderCancelled
	return nil
}

func (l *fakeLedger) PlaceBid(ctx context.Context, actor, tenderId string, amount int64, proposal string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "bid")
	if _, ok := l.records[tenderId]; !ok {
		return fmt.Errorf("fake ledger: tender %s: %w", tenderId, models.ErrNotFound)
	}
	return nil
}

func (l *fakeLedger) Name() string { return "fake-ledger" }

func (l *fakeLedger) List(ctx context.Context) ([]models.TenderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]models.TenderRecord, 0, len(l.records))
	for _, record := range l.records {
		records = append(records, *record)
	}
	return records, nil
}

func (l *fakeLedger) Get(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[tenderId]
	if !ok {
		return nil, fmt.Errorf("fake ledger: tender %s: %w", tenderId, models.ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

func (l *fakeLedger) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *fakeLedger) resetOps() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
}

// monitorStub answers health probes with a configurable function
// surface.
type monitorStub struct {
	functions []string
}

func (s monitorStub) ChainID(ctx context.Context) (string, error) { return "1337", nil }
func (s monitorStub) GetCode(ctx context.Context, address string) (string, error) {
	return "0x60806040", nil
}
func (s monitorStub) Functions(ctx context.Context, address string) ([]string, error) {
	return s.functions, nil
}
func (s monitorStub) Read(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	return json.RawMessage(`0`), nil
}
func (s monitorStub) Send(ctx context.Context, fn, actor string, args ...any) (ledger.PendingHandle, error) {
	return ledger.PendingHandle{}, errors.New("monitor stub does not send")
}
func (s monitorStub) AwaitFinalization(ctx context.Context, handle ledger.PendingHandle) (*ledger.Receipt, error) {
	return nil, errors.New("monitor stub does not send")
}

func liveMonitor(t *testing.T, bids bool) *ledger.Monitor {
	t.Helper()
	functions := ledger.RequiredFunctions()
	if bids {
		functions = append(functions, ledger.BidFunctions()...)
	}
	m := ledger.NewMonitor(
		monitorStub{functions: functions},
		config.Network{Name: "unit", ChainID: "1337", ProgramAddress: "0x00000000000000000000000000000000000000aa"},
		config.LedgerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond, ReadTimeout: time.Second},
	)
	status := m.Refresh(context.Background())
	require.Equal(t, ledger.StateAvailable, status.State)
	return m
}

func downMonitor() *ledger.Monitor {
	return ledger.NewMonitor(
		monitorStub{},
		config.Network{Name: "unit"},
		config.LedgerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond, ReadTimeout: time.Second},
	)
}

//// Worlds

type world struct {
	store  *fakeStore
	ledger *fakeLedger
	disp   *Dispatcher
}

func newWorld(monitor *ledger.Monitor) *world {
	store := newFakeStore()
	chain := newFakeLedger(store)
	engine := reconcile.NewEngine(source.NewStoreConnector(store), chain, monitor, 0)
	return &world{
		store:  store,
		ledger: chain,
		disp:   NewDispatcher(store, chain, engine, monitor),
	}
}

func seedTender(t *testing.T, w *world, id, creator string, status models.TenderStatus, assignee string) {
	t.Helper()
	err := w.store.CreateTender(context.Background(), &models.TenderRecord{
		Id:        id,
		Title:     "Grain haul",
		Budget:    420000,
		ExpiresAt: time.Now().Add(time.Hour),
		Status:    status,
		Creator:   creator,
		Assignee:  assignee,
		Origin:    models.OriginStore,
	})
	require.NoError(t, err)
}

func seedMirrored(t *testing.T, w *world, id, creator string) {
	t.Helper()
	seedTender(t, w, id, creator, models.TenderOpen, "")
	record := w.store.row(id)
	_, err := w.ledger.CreateTender(context.Background(), creator, &record)
	require.NoError(t, err)
	w.ledger.resetOps()
}

func draftIntent(actor string) models.Intent {
	return models.Intent{
		Kind:  models.IntentCreate,
		Actor: actor,
		Draft: &models.TenderDraft{
			Title:     "Grain haul",
			Budget:    420000,
			ExpiresAt: time.Now().Add(time.Hour),
			Cargo:     models.CargoAttributes{DistanceKm: 540, WeightKg: 24000, CargoType: models.CargoGeneral, UrgencyDays: 12},
		},
	}
}

func actionIntent(kind models.IntentKind, tenderId, actor string) models.Intent {
	return models.Intent{Kind: kind, TenderId: tenderId, Actor: actor}
}

//// Create

func TestDispatcher_CreateMirrors(t *testing.T) {
	w := newWorld(liveMonitor(t, true))

	result, err := w.disp.Dispatch(context.Background(), draftIntent("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.OriginBoth, result.Record.Origin)
	assert.NotEmpty(t, result.Record.LedgerId)
	assert.Equal(t, "alice", result.Record.Creator)
	assert.Equal(t, models.TenderOpen, result.Record.Status)
	assert.False(t, result.Migrated)

	assert.Equal(t, []string{"create"}, w.ledger.seen())
	assert.Equal(t, result.Record.LedgerId, w.store.row(result.Record.Id).LedgerId)
}

func TestDispatcher_CreateSurvivesMirrorFailure(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	w.ledger.createErr = fmt.Errorf("send createTender: %w", models.ErrLedgerUnavailable)

	result, err := w.disp.Dispatch(context.Background(), draftIntent("alice"))
	require.NoError(t, err, "a failed mirror must not fail the create")
	assert.Equal(t, models.OriginStore, result.Record.Origin)
	assert.Empty(t, result.Record.LedgerId)
	assert.Equal(t, models.TenderOpen, w.store.row(result.Record.Id).Status)
}

func TestDispatcher_CreateOffline(t *testing.T) {
	w := newWorld(downMonitor())

	result, err := w.disp.Dispatch(context.Background(), draftIntent("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.OriginStore, result.Record.Origin)
	assert.Empty(t, w.ledger.seen())
}

func TestDispatcher_CreateNeedsDraft(t *testing.T) {
	w := newWorld(downMonitor())

	_, err := w.disp.Dispatch(context.Background(), models.Intent{Kind: models.IntentCreate, Actor: "alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft")
}

//// Take

func TestDispatcher_TakeMigratesLazily(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedTender(t, w, "t-1", "alice", models.TenderOpen, "")

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.NoError(t, err)
	assert.True(t, result.Migrated)
	assert.Equal(t, []string{"create", "take"}, w.ledger.seen())

	assert.Equal(t, models.TenderAwarded, result.Record.Status)
	assert.Equal(t, "bob", result.Record.Assignee)
	assert.Equal(t, models.OriginBoth, result.Record.Origin)
	assert.Equal(t, models.TenderAwarded, w.store.row("t-1").Status)
	assert.Equal(t, "bob", w.store.winners["t-1"], "an award settles open bids")
}

func TestDispatcher_TakeAlreadyMirrored(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.NoError(t, err)
	assert.False(t, result.Migrated)
	assert.Equal(t, []string{"take"}, w.ledger.seen())
}

func TestDispatcher_RejectionNotRetried(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")
	w.ledger.takeErr = &models.LedgerRejectedError{Reason: "Tender is not open"}

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.ErrorIs(t, err, models.ErrLedgerRejected)
	assert.Equal(t, "Tender is not open", models.RejectionReason(err))
	assert.Equal(t, []string{"take"}, w.ledger.seen(), "mutations are never retried")
	assert.Equal(t, models.TenderOpen, w.store.row("t-1").Status, "store must not run ahead of a rejected ledger")
}

func TestDispatcher_SecondMutationBusy(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")
	w.ledger.enteredTake = make(chan struct{}, 1)
	w.ledger.blockTake = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
		first <- err
	}()

	<-w.ledger.enteredTake
	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "carol"))
	require.ErrorIs(t, err, models.ErrBusy)

	close(w.ledger.blockTake)
	require.NoError(t, <-first)
	assert.Equal(t, "bob", w.store.row("t-1").Assignee)
}

func TestDispatcher_TakeOwnTenderRejectedLocally(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "alice"))
	require.ErrorIs(t, err, models.ErrInvalidParty)
	assert.Empty(t, w.ledger.seen(), "invalid intents never reach the ledger")
}

func TestDispatcher_ExpiredTenderRefused(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedTender(t, w, "t-1", "alice", models.TenderOpen, "")
	w.store.tenders["t-1"].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.ErrorIs(t, err, models.ErrExpired)
	assert.Empty(t, w.ledger.seen())
}

func TestDispatcher_MissingTender(t *testing.T) {
	w := newWorld(liveMonitor(t, true))

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-404", "bob"))
	require.ErrorIs(t, err, models.ErrNotFound)
}

//// Complete

func TestDispatcher_CompleteReplaysAward(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedTender(t, w, "t-1", "alice", models.TenderAwarded, "carol")

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentComplete, "t-1", "carol"))
	require.NoError(t, err)
	assert.True(t, result.Migrated)
	assert.Equal(t, []string{"create", "take", "complete"}, w.ledger.seen(),
		"migrating an awarded tender replays the award before completing")
	assert.Equal(t, models.TenderCompleted, result.Record.Status)
	assert.Equal(t, models.TenderCompleted, w.store.row("t-1").Status)
}

func TestDispatcher_CompleteMirroredSkipsReplay(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")
	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "carol"))
	require.NoError(t, err)
	w.ledger.resetOps()

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentComplete, "t-1", "carol"))
	require.NoError(t, err)
	assert.False(t, result.Migrated)
	assert.Equal(t, []string{"complete"}, w.ledger.seen())
}

//// Offline mutations

func TestDispatcher_OfflineUnboundTenderMutates(t *testing.T) {
	w := newWorld(downMonitor())
	seedTender(t, w, "t-1", "alice", models.TenderOpen, "")

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.NoError(t, err)
	assert.False(t, result.Migrated)
	assert.Equal(t, models.TenderAwarded, w.store.row("t-1").Status)
	assert.Empty(t, w.ledger.seen())
}

func TestDispatcher_OfflineBoundTenderRefused(t *testing.T) {
	w := newWorld(downMonitor())
	seedTender(t, w, "t-1", "alice", models.TenderOpen, "")
	w.store.bindRow("t-1", "70001")

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentTake, "t-1", "bob"))
	require.ErrorIs(t, err, models.ErrLedgerUnavailable,
		"a mirrored tender must not fork while its ledger side is unreachable")
}

//// Close

func TestDispatcher_CloseStaysStoreSide(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")

	result, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentClose, "t-1", "alice"))
	require.NoError(t, err)
	assert.Empty(t, w.ledger.seen(), "the program exposes no close call")
	assert.Equal(t, models.TenderClosed, result.Record.Status,
		"the store-side close must win over the still-open ledger state")
	assert.Equal(t, models.TenderClosed, w.store.row("t-1").Status)
}

func TestDispatcher_CloseLedgerNativeRefused(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	w.ledger.records["90310"] = &models.TenderRecord{
		Id:       "90310",
		LedgerId: "90310",
		Title:    "Machinery flatbed",
		Status:   models.TenderOpen,
		Creator:  "0xowner",
		Origin:   models.OriginLedger,
	}

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentClose, "90310", "0xowner"))
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

//// Bids

func TestDispatcher_BidPlacedOnLedger(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")

	intent := actionIntent(models.IntentBid, "t-1", "carol")
	intent.Bid = &models.BidDraft{TenderId: "t-1", Bidder: "carol", Amount: 410000, Proposal: "Covered hopper available"}
	result, err := w.disp.Dispatch(context.Background(), intent)
	require.NoError(t, err)
	assert.False(t, result.CapabilityDegraded)
	assert.Equal(t, []string{"bid"}, w.ledger.seen())
	assert.Equal(t, models.TenderOpen, result.Record.Status, "a bid does not award the tender")

	bids := w.store.rowBids("t-1")
	require.Len(t, bids, 1)
	assert.Equal(t, "carol", bids[0].Bidder)
	assert.Equal(t, models.BidPending, bids[0].Status)
}

func TestDispatcher_BidDegradesToTake(t *testing.T) {
	w := newWorld(liveMonitor(t, false))
	seedTender(t, w, "t-1", "alice", models.TenderOpen, "")

	intent := actionIntent(models.IntentBid, "t-1", "carol")
	intent.Bid = &models.BidDraft{TenderId: "t-1", Bidder: "carol", Amount: 410000, Proposal: "Covered hopper available"}
	result, err := w.disp.Dispatch(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, result.CapabilityDegraded, "the caller must learn the bid became a take")
	assert.True(t, result.Migrated)
	assert.Equal(t, []string{"create", "take"}, w.ledger.seen())

	assert.Equal(t, models.TenderAwarded, result.Record.Status)
	assert.Equal(t, "carol", result.Record.Assignee)

	bids := w.store.rowBids("t-1")
	require.Len(t, bids, 1)
	assert.Equal(t, models.BidAccepted, bids[0].Status, "the winning degraded bid settles as accepted")
}

func TestDispatcher_BidNeedsDraft(t *testing.T) {
	w := newWorld(liveMonitor(t, true))
	seedMirrored(t, w, "t-1", "alice")

	_, err := w.disp.Dispatch(context.Background(), actionIntent(models.IntentBid, "t-1", "carol"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bid")
}

//// Intent surface

func TestDispatcher_UnknownIntentKind(t *testing.T) {
	w := newWorld(downMonitor())

	_, err := w.disp.Dispatch(context.Background(), models.Intent{Kind: models.IntentKind("Publish"), Actor: "alice"})
	require.Error(t, err)
}
