package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"tenderbridge/internal/config"
)

//// Health states

type HealthState string

const (
	StateIdle        HealthState = "Idle"
	StateConnecting  HealthState = "Connecting"
	StateAvailable   HealthState = "Available"
	StateUnavailable HealthState = "Unavailable"
)

// Capabilities reports which optional parts of the program surface the
// bound deployment actually declares.
type Capabilities struct {
	Bids bool `json:"bids"`
}

type HealthStatus struct {
	State        HealthState  `json:"state"`
	Network      string       `json:"network"`
	ChainID      string       `json:"chainId,omitempty"`
	TenderCount  int64        `json:"tenderCount"`
	Capabilities Capabilities `json:"capabilities"`
	CheckedAt    time.Time    `json:"checkedAt"`
	Reason       string       `json:"reason,omitempty"`
}

//// Monitor

// Monitor owns the bridge's answer to "is the ledger usable right
// now". A refresh probes the bound network end to end: the program
// address must hold code, declare every required function and answer a
// typed count read. Probes carry the epoch current at their start, and
// a rebind bumps the epoch, so results of probes against a previous
// binding are discarded instead of overwriting fresh state.
type Monitor struct {
	epoch atomic.Int64

	mu      sync.RWMutex
	client  Client
	network config.Network
	status  HealthStatus

	attempts int
	delay    time.Duration
	timeout  time.Duration
}

func NewMonitor(client Client, network config.Network, cfg config.LedgerConfig) *Monitor {
	m := &Monitor{
		client:   client,
		network:  network,
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		timeout:  cfg.ReadTimeout,
	}
	if m.attempts < 1 {
		m.attempts = 1
	}
	m.status = HealthStatus{State: StateIdle, Network: network.Name}
	return m
}

func (m *Monitor) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) Available() bool {
	return m.Status().State == StateAvailable
}

func (m *Monitor) Capabilities() Capabilities {
	return m.Status().Capabilities
}

func (m *Monitor) Network() config.Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.network
}

// Rebind points the monitor at a different client or network, as
// happens when the signing agent switches accounts or chains. The
// epoch bump invalidates any probe still in flight against the old
// binding.
func (m *Monitor) Rebind(client Client, network config.Network) {
	m.epoch.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
	m.network = network
	m.status = HealthStatus{State: StateIdle, Network: network.Name}
	log.Printf("ledger monitor rebound to network %q", network.Name)
}

// MarkUnavailable records a failure observed outside a probe, such as
// a transport error during a mutation.
func (m *Monitor) MarkUnavailable(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateUnavailable {
		log.Printf("ledger unavailable: %s", reason)
	}
	m.status.State = StateUnavailable
	m.status.Reason = reason
	m.status.CheckedAt = time.Now()
}

// Refresh runs the full probe sequence under the retry budget and
// returns the resulting status. A stale result, one whose epoch was
// bumped mid-probe by a rebind or a newer refresh, leaves the stored
// status untouched.
func (m *Monitor) Refresh(ctx context.Context) HealthStatus {
	epoch := m.epoch.Inc()

	m.mu.Lock()
	client, network := m.client, m.network
	m.status.State = StateConnecting
	m.mu.Unlock()

	status := HealthStatus{
		Network:   network.Name,
		CheckedAt: time.Now(),
	}
	if client == nil {
		status.State = StateUnavailable
		status.Reason = "no ledger client bound"
		return m.commit(epoch, status)
	}

	result, err := m.probe(ctx, client, network)
	if err != nil {
		status.State = StateUnavailable
		status.Reason = err.Error()
		return m.commit(epoch, status)
	}

	status.State = StateAvailable
	status.ChainID = result.chainID
	status.TenderCount = result.count
	status.Capabilities = result.caps
	return m.commit(epoch, status)
}

func (m *Monitor) commit(epoch int64, status HealthStatus) HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch.Load() != epoch {
		return m.status
	}
	if m.status.State != status.State {
		log.Printf("ledger %s -> %s (network %s)", m.status.State, status.State, status.Network)
	}
	m.status = status
	return status
}

//// Probes

type probeResult struct {
	chainID string
	count   int64
	caps    Capabilities
}

func (m *Monitor) probe(ctx context.Context, client Client, network config.Network) (probeResult, error) {
	var report error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		result, err := m.probeOnce(ctx, client, network)
		if err == nil {
			return result, nil
		}
		report = multierror.Append(report, fmt.Errorf("attempt %d: %w", attempt, err))
		if attempt == m.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return probeResult{}, multierror.Append(report, ctx.Err())
		case <-time.After(m.delay):
		}
	}
	return probeResult{}, report
}

func (m *Monitor) probeOnce(ctx context.Context, client Client, network config.Network) (probeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if !validAddress(network.ProgramAddress) {
		return probeResult{}, fmt.Errorf("invalid program address %q", network.ProgramAddress)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return probeResult{}, fmt.Errorf("chain id: %w", err)
	}
	if network.ChainID != "" && chainID != network.ChainID {
		return probeResult{}, fmt.Errorf("chain id mismatch: ledger reports %s, network %q declares %s",
			chainID, network.Name, network.ChainID)
	}

	code, err := client.GetCode(ctx, network.ProgramAddress)
	if err != nil {
		return probeResult{}, fmt.Errorf("code at %s: %w", network.ProgramAddress, err)
	}
	if code == "" || code == "0x" {
		return probeResult{}, fmt.Errorf("no code at program address %s", network.ProgramAddress)
	}

	declared, err := client.Functions(ctx, network.ProgramAddress)
	if err != nil {
		return probeResult{}, fmt.Errorf("declared functions: %w", err)
	}
	if len(declared) == 0 {
		declared = network.Functions
	}
	if missing := missingFunctions(declared); len(missing) > 0 {
		return probeResult{}, fmt.Errorf("program does not declare: %s", strings.Join(missing, ", "))
	}

	raw, err := client.Read(ctx, FnGetTenderCount)
	if err != nil {
		return probeResult{}, fmt.Errorf("read %s: %w", FnGetTenderCount, err)
	}
	count, err := parseCount(raw)
	if err != nil {
		return probeResult{}, fmt.Errorf("read %s: %w", FnGetTenderCount, err)
	}

	return probeResult{
		chainID: chainID,
		count:   count,
		caps:    Capabilities{Bids: declaresAll(declared, BidFunctions())},
	}, nil
}

func missingFunctions(declared []string) []string {
	var missing []string
	for _, fn := range RequiredFunctions() {
		if !declares(declared, fn) {
			missing = append(missing, fn)
		}
	}
	return missing
}

func declares(declared []string, fn string) bool {
	for _, name := range declared {
		if name == fn {
			return true
		}
	}
	return false
}

func declaresAll(declared []string, fns []string) bool {
	for _, fn := range fns {
		if !declares(declared, fn) {
			return false
		}
	}
	return true
}

func parseCount(raw json.RawMessage) (int64, error) {
	var count int64
	if err := json.Unmarshal(raw, &count); err == nil {
		return count, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("%q is not a count", string(raw))
	}
	count, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a count", text)
	}
	return count, nil
}

func validAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, r := range address[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
