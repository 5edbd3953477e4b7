// Package connectors implements the ~30 concrete data-source pollers, each a Connector that
// fetches from one external source and emits typed Signals into the Signal Store. Grounded on
// internal/scheduler.Job's two-method tagged-interface shape, generalized per SPEC_FULL.md §4.2.
package connectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
)

// Connector is a named poller that fetches its own data and returns zero or more Signals. Poll
// must never propagate errors to the caller: transport/parse failures are swallowed and counted.
type Connector interface {
	Name() string
	Category() domain.Category
	Due(now time.Time) bool
	Poll(ctx context.Context) []domain.Signal
	State() domain.ConnectorState
}

// Base centralizes the due/error-count bookkeeping shared by every concrete connector, following
// the field-and-method split of internal/scheduler's Job/Scheduler separation (state lives with
// the job, scheduling logic stays generic).
type Base struct {
	name         string
	category     domain.Category
	pollInterval time.Duration
	reliability  float64

	lastPollAt time.Time
	errorCount int
}

// NewBase constructs the shared bookkeeping for a concrete connector.
func NewBase(name string, category domain.Category, pollInterval time.Duration, reliability float64) Base {
	return Base{name: name, category: category, pollInterval: pollInterval, reliability: reliability}
}

// Name returns the connector's stable identifier.
func (b *Base) Name() string { return b.name }

// Category returns the connector's signal category.
func (b *Base) Category() domain.Category { return b.category }

// Reliability returns the connector's constant reliability weight.
func (b *Base) Reliability() float64 { return b.reliability }

// Due reports whether enough time has elapsed since the last poll, or none has happened yet.
func (b *Base) Due(now time.Time) bool {
	if b.lastPollAt.IsZero() {
		return true
	}
	return now.Sub(b.lastPollAt) >= b.pollInterval
}

// MarkPolled records a completed poll attempt and updates the consecutive error count: pass
// ok=true on a successful fetch (resets to 0), ok=false on transport/parse failure (increments).
func (b *Base) MarkPolled(now time.Time, ok bool) {
	b.lastPollAt = now
	if ok {
		b.errorCount = 0
	} else {
		b.errorCount++
	}
}

// State snapshots the connector's current bookkeeping for health reporting.
func (b *Base) State() domain.ConnectorState {
	return domain.ConnectorState{
		Name:         b.name,
		Category:     b.category,
		LastPollAt:   b.lastPollAt,
		PollInterval: b.pollInterval,
		ErrorCount:   b.errorCount,
		Reliability:  b.reliability,
	}
}

// deps bundles the shared collaborators every concrete connector needs: an HTTP fetcher and a
// logger. Connectors that populate the market-data cache hold it in their own field.
type deps struct {
	fetch *httpfetch.Fetcher
	log   zerolog.Logger
}

func newDeps(fetch *httpfetch.Fetcher, log zerolog.Logger, name string) deps {
	return deps{fetch: fetch, log: log.With().Str("connector", name).Logger()}
}
