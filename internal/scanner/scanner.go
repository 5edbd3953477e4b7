// Package scanner drives the full connector roster on one shared poll cycle: each due Connector
// is polled concurrently, its Signals batch-inserted into the Signal Store, and a
// events.SignalsUpdated event is emitted summarizing what changed. Grounded on
// trader-go/internal/scheduler/scheduler.go's tick-and-fan-out shape, generalized from one job
// per tick to many independent connectors per tick.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/connectors"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/signalstore"
)

// Scanner owns the live connector roster and the Signal Store they feed.
type Scanner struct {
	connectors []connectors.Connector
	store      *signalstore.Store
	events     *events.Manager
	log        zerolog.Logger
}

// New wires a Scanner over an already-constructed connector roster.
func New(roster []connectors.Connector, store *signalstore.Store, em *events.Manager, log zerolog.Logger) *Scanner {
	return &Scanner{connectors: roster, store: store, events: em, log: log.With().Str("component", "scanner").Logger()}
}

// Scan polls every connector whose cadence is due, concurrently, and inserts whatever Signals
// they return into the Signal Store. Individual connector failures never abort the cycle: Poll
// itself never propagates errors, so a bad connector simply contributes zero Signals this tick.
// Returns the number of newly inserted (non-duplicate) Signals and the store's total active count.
func (s *Scanner) Scan(ctx context.Context) (newSignals int, totalActive int) {
	now := time.Now()

	var due []connectors.Connector
	for _, c := range s.connectors {
		if c.Due(now) {
			due = append(due, c)
		}
	}

	if len(due) == 0 {
		return 0, s.store.Len()
	}

	var mu sync.Mutex
	var batch []domain.Signal
	var wg sync.WaitGroup
	wg.Add(len(due))

	for _, c := range due {
		go func(c connectors.Connector) {
			defer wg.Done()
			sigs := c.Poll(ctx)
			if len(sigs) == 0 {
				return
			}
			mu.Lock()
			batch = append(batch, sigs...)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	inserted := s.store.AddBatch(batch)
	total := s.store.Len()

	if inserted > 0 && s.events != nil {
		s.events.Emit(events.SignalsUpdated, "scanner", map[string]interface{}{
			"new_signals":  inserted,
			"total_active": total,
		})
	}

	return inserted, total
}

// ConnectorStates reports the current health bookkeeping for every wired connector, in roster
// order, for /api/health and /api/dashboard.
func (s *Scanner) ConnectorStates() []domain.ConnectorState {
	states := make([]domain.ConnectorState, 0, len(s.connectors))
	for _, c := range s.connectors {
		states = append(states, c.State())
	}
	return states
}

// Name satisfies the scheduler.Job interface: the scanner itself is scheduled on a fixed tick,
// each tick delegating to the per-connector Due() gate.
func (s *Scanner) Name() string { return "scanner" }

// Run executes one scan cycle with a background context, for scheduler.Job wiring.
func (s *Scanner) Run() error {
	s.Scan(context.Background())
	return nil
}
