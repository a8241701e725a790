package dispatch

import (
	"fmt"
	"sync"

	"tenderbridge/internal/models"
)

// FlightGuard admits one mutation per tender at a time. A second
// mutation arriving while the first is still in flight fails fast with
// ErrBusy instead of queueing: the caller's view is about to be stale
// either way, and double-submitting to the ledger is worse than a
// retry.
type FlightGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewFlightGuard() *FlightGuard {
	return &FlightGuard{inFlight: map[string]bool{}}
}

func (g *FlightGuard) Acquire(tenderId string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[tenderId] {
		return fmt.Errorf("dispatch: tender %s has a mutation in flight: %w",
			tenderId, models.ErrBusy)
	}
	g.inFlight[tenderId] = true
	return nil
}

func (g *FlightGuard) Release(tenderId string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, tenderId)
}
