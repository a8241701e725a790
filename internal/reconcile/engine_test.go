package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderbridge/internal/config"
	"tenderbridge/internal/ledger"
	"tenderbridge/internal/models"
)

type fakeConnector struct {
	name    string
	records []models.TenderRecord
	listErr error
	getErr  error
}

func (c *fakeConnector) Name() string { return c.name }

func (c *fakeConnector) List(ctx context.Context) ([]models.TenderRecord, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]models.TenderRecord(nil), c.records...), nil
}

func (c *fakeConnector) Get(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	for _, record := range c.records {
		if record.Id == tenderId {
			record := record
			return &record, nil
		}
	}
	return nil, fmt.Errorf("%s: tender %s: %w", c.name, tenderId, models.ErrNotFound)
}

// probeStub answers the monitor's probe so tests can pin the health
// state without a ledger behind it.
type probeStub struct{}

func (probeStub) ChainID(ctx context.Context) (string, error) { return "1337", nil }
func (probeStub) GetCode(ctx context.Context, address string) (string, error) {
	return "0x60806040", nil
}
func (probeStub) Functions(ctx context.Context, address string) ([]string, error) {
	return append(ledger.RequiredFunctions(), ledger.BidFunctions()...), nil
}
func (probeStub) Read(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	return json.RawMessage(`0`), nil
}
func (probeStub) Send(ctx context.Context, fn, actor string, args ...any) (ledger.PendingHandle, error) {
	return ledger.PendingHandle{}, errors.New("probe stub does not send")
}
func (probeStub) AwaitFinalization(ctx context.Context, handle ledger.PendingHandle) (*ledger.Receipt, error) {
	return nil, errors.New("probe stub does not send")
}

func monitorNetwork() config.Network {
	return config.Network{
		Name:           "unit",
		ChainID:        "1337",
		ProgramAddress: "0x00000000000000000000000000000000000000aa",
	}
}

func monitorConfig() config.LedgerConfig {
	return config.LedgerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond, ReadTimeout: time.Second}
}

func availableMonitor(t *testing.T) *ledger.Monitor {
	t.Helper()
	m := ledger.NewMonitor(probeStub{}, monitorNetwork(), monitorConfig())
	status := m.Refresh(context.Background())
	require.Equal(t, ledger.StateAvailable, status.State)
	return m
}

func idleMonitor() *ledger.Monitor {
	return ledger.NewMonitor(probeStub{}, monitorNetwork(), monitorConfig())
}

func TestEngine_ListMergesBothSides(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", "88214"),
		storeTender("r-2", ""),
	}}
	ledgerConn := &fakeConnector{name: "ledger", records: []models.TenderRecord{
		chainTender("88214"),
		chainTender("90310"),
	}}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 3)

	listing, err := engine.ListCanonical(context.Background())
	require.NoError(t, err)
	assert.False(t, listing.Degraded)
	require.Len(t, listing.Records, 3)
	assert.Equal(t, models.OriginBoth, listing.Records[0].Origin)
	assert.Equal(t, models.OriginStore, listing.Records[1].Origin)
	assert.Equal(t, "90310", listing.Records[2].Id)
}

func TestEngine_ListDegradesWhileLedgerDown(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", "88214"),
	}}
	ledgerConn := &fakeConnector{name: "ledger"}
	engine := NewEngine(storeConn, ledgerConn, idleMonitor(), 3)

	listing, err := engine.ListCanonical(context.Background())
	require.NoError(t, err)
	assert.True(t, listing.Degraded)
	require.Len(t, listing.Records, 4)
	assert.Equal(t, models.OriginStore, listing.Records[0].Origin)
	for _, record := range listing.Records[1:] {
		assert.True(t, models.SyntheticId(record.Id))
		assert.Equal(t, models.OriginSynthetic, record.Origin)
	}
}

func TestEngine_ListDegradesOnTransientError(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", ""),
	}}
	ledgerConn := &fakeConnector{
		name:    "ledger",
		listErr: fmt.Errorf("read getActiveTenders: %w", models.ErrLedgerUnavailable),
	}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 1)

	listing, err := engine.ListCanonical(context.Background())
	require.NoError(t, err)
	assert.True(t, listing.Degraded)
	require.Len(t, listing.Records, 2)
}

func TestEngine_ListSurfacesHardErrors(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store"}
	ledgerConn := &fakeConnector{name: "ledger", listErr: errors.New("corrupt response")}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 1)

	_, err := engine.ListCanonical(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrLedgerUnavailable)
}

func TestEngine_StoreOnlyDeployment(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", ""),
	}}
	engine := NewEngine(storeConn, nil, nil, 3)

	listing, err := engine.ListCanonical(context.Background())
	require.NoError(t, err)
	assert.False(t, listing.Degraded, "no ledger configured is not a degradation")
	require.Len(t, listing.Records, 1)

	_, err = engine.GetCanonical(context.Background(), "r-404")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestEngine_GetMergesPair(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", "88214"),
	}}
	onLedger := chainTender("88214")
	onLedger.Id = "r-1"
	ledgerConn := &fakeConnector{name: "ledger", records: []models.TenderRecord{onLedger}}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 0)

	record, err := engine.GetCanonical(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, models.TenderAwarded, record.Status)
	assert.Equal(t, models.OriginBoth, record.Origin)
}

func TestEngine_GetFallsBackToStore(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store", records: []models.TenderRecord{
		storeTender("r-1", "88214"),
	}}
	ledgerConn := &fakeConnector{
		name:   "ledger",
		getErr: fmt.Errorf("read getTender: %w", models.ErrTimeout),
	}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 0)

	record, err := engine.GetCanonical(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, models.OriginStore, record.Origin)
}

func TestEngine_GetMissWithLedgerDown(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store"}
	ledgerConn := &fakeConnector{name: "ledger"}
	engine := NewEngine(storeConn, ledgerConn, idleMonitor(), 0)

	_, err := engine.GetCanonical(context.Background(), "r-404")
	require.ErrorIs(t, err, models.ErrLedgerUnavailable,
		"a miss while the ledger is unreachable is not a definitive miss")
}

func TestEngine_GetMissEverywhere(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store"}
	ledgerConn := &fakeConnector{name: "ledger"}
	engine := NewEngine(storeConn, ledgerConn, availableMonitor(t), 0)

	_, err := engine.GetCanonical(context.Background(), "r-404")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestEngine_GetRejectsPlaceholderIds(t *testing.T) {
	storeConn := &fakeConnector{name: "record-store"}
	engine := NewEngine(storeConn, nil, nil, 3)

	_, err := engine.GetCanonical(context.Background(), "synthetic-001")
	require.ErrorIs(t, err, models.ErrNotFound)
}
