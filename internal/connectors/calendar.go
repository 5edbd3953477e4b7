package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// calendarEvent is one entry loaded from data/events.json. Dates are never compiled into source
// (see DESIGN.md's Open Question decision) so the file can be refreshed without a rebuild.
// Consensus/Previous are optional: most scheduled entries are pure timing (FOMC, NFP dates)
// without a forecast, and only carry a surprise once Actual is filled in by a later refresh of
// the file or an operator edit.
type calendarEvent struct {
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	When       time.Time `json:"when"`
	Weight     float64   `json:"weight"`
	Actual     *float64  `json:"actual,omitempty"`
	Consensus  *float64  `json:"consensus,omitempty"`
	Previous   *float64  `json:"previous,omitempty"`
	recorded   bool
}

// eventBand is the §4.13 state-machine position of one event relative to now.
type eventBand int

const (
	bandFuture eventBand = iota
	bandPre
	bandImminent
	bandLive
	bandRecent
	bandGone
)

func classifyBand(when, now time.Time) eventBand {
	delta := when.Sub(now)
	switch {
	case delta >= 24*time.Hour:
		return bandFuture
	case delta > 2*time.Hour:
		return bandPre
	case delta > 30*time.Minute:
		return bandImminent
	case delta >= -30*time.Minute:
		return bandLive
	case delta >= -2*time.Hour:
		return bandRecent
	default:
		return bandGone
	}
}

// EconCalendar iterates a static event list, emitting signals in three time bands and feeding
// the marketdata.Cache's next-event-minutes input for event_proximity. It also owns
// event_surprises.db: once an event with a filled-in Actual crosses into the recent/gone band, its
// surprise is scored against consensus and persisted once.
type EconCalendar struct {
	Base
	log       zerolog.Logger
	cache     *marketdata.Cache
	events    []calendarEvent
	surprises *database.DB
}

// NewEconCalendar loads events from path (data/events.json). A missing or malformed file yields
// a connector with zero events — it degrades to emitting nothing rather than failing startup.
// surprisesDB may be nil (surprise persistence is then skipped); when non-nil its schema is
// created on first use.
func NewEconCalendar(path string, log zerolog.Logger, cache *marketdata.Cache, surprisesDB *database.DB) *EconCalendar {
	c := &EconCalendar{
		Base:      NewBase("econ_calendar", domain.CategoryMacro, 5*time.Minute, 0.95),
		log:       log.With().Str("connector", "econ_calendar").Logger(),
		cache:     cache,
		surprises: surprisesDB,
	}
	if surprisesDB != nil {
		if err := c.migrateSurprises(); err != nil {
			c.log.Error().Err(err).Msg("failed to migrate event_surprises schema")
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("no events.json found; calendar connector idle")
		return c
	}
	if err := json.Unmarshal(data, &c.events); err != nil {
		c.log.Error().Err(err).Msg("failed to parse events.json")
		return c
	}
	return c
}

func (c *EconCalendar) migrateSurprises() error {
	_, err := c.surprises.Exec(`
		CREATE TABLE IF NOT EXISTS event_surprises (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_name TEXT,
			released_at TEXT,
			actual REAL,
			consensus REAL,
			previous REAL,
			surprise_pct REAL,
			direction TEXT,
			subsequent_move_30m REAL,
			subsequent_move_2h REAL
		)
	`)
	return err
}

// recordSurprise scores ev against consensus and inserts one event_surprises.db row. The
// subsequent-move columns (30m/2h) are not filled in: no live price feed is wired to this
// connector and nothing else writes them, so they stay null.
func (c *EconCalendar) recordSurprise(ev calendarEvent) {
	if c.surprises == nil || ev.Actual == nil || ev.Consensus == nil {
		return
	}
	pct, direction := domain.ClassifySurprise(*ev.Actual, *ev.Consensus)
	var previous float64
	if ev.Previous != nil {
		previous = *ev.Previous
	}
	_, err := c.surprises.Exec(`
		INSERT INTO event_surprises (event_name, released_at, actual, consensus, previous, surprise_pct, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Name, ev.When.UTC().Format(time.RFC3339), *ev.Actual, *ev.Consensus, previous, pct, string(direction))
	if err != nil {
		c.log.Error().Err(err).Str("event", ev.Name).Msg("failed to record event surprise")
	}
}

// UpcomingEvent is one calendar entry due within the requested lookahead window, annotated with
// its time-until for /api/events.
type UpcomingEvent struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	When         time.Time `json:"when"`
	MinutesUntil float64   `json:"minutes_until"`
}

// Upcoming returns every calendar event due within the next `hours`, soonest first.
func (c *EconCalendar) Upcoming(hours float64) []UpcomingEvent {
	now := time.Now()
	horizon := now.Add(time.Duration(hours * float64(time.Hour)))

	var out []UpcomingEvent
	for _, ev := range c.events {
		if ev.When.Before(now) || ev.When.After(horizon) {
			continue
		}
		out = append(out, UpcomingEvent{
			Symbol:       ev.Symbol,
			Name:         ev.Name,
			When:         ev.When,
			MinutesUntil: ev.When.Sub(now).Minutes(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinutesUntil < out[j].MinutesUntil })
	return out
}

// RecentSurprises returns the most recent event_surprises.db rows, newest first, for folding into
// /api/events.
func (c *EconCalendar) RecentSurprises(limit int) []domain.EventSurprise {
	if c.surprises == nil {
		return nil
	}
	rows, err := c.surprises.Query(`
		SELECT event_name, released_at, actual, consensus, previous, surprise_pct, direction
		FROM event_surprises ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to query event_surprises")
		return nil
	}
	defer rows.Close()

	var out []domain.EventSurprise
	for rows.Next() {
		var s domain.EventSurprise
		var releasedAt, direction string
		if err := rows.Scan(&s.EventName, &releasedAt, &s.Actual, &s.Consensus, &s.Previous, &s.SurprisePct, &direction); err != nil {
			continue
		}
		s.ReleasedAt, _ = time.Parse(time.RFC3339, releasedAt)
		s.Direction = domain.SurpriseDirection(direction)
		out = append(out, s)
	}
	return out
}

func (c *EconCalendar) Poll(ctx context.Context) []domain.Signal {
	now := time.Now()
	c.MarkPolled(now, true)

	nextMinutes := -1.0
	var signals []domain.Signal
	for i := range c.events {
		ev := c.events[i]
		minutesUntil := ev.When.Sub(now).Minutes()
		if minutesUntil >= 0 && (nextMinutes < 0 || minutesUntil < nextMinutes) {
			nextMinutes = minutesUntil
		}

		band := classifyBand(ev.When, now)
		if (band == bandRecent || band == bandGone) && !ev.recorded {
			c.recordSurprise(ev)
			c.events[i].recorded = true
		}

		var strength float64
		switch band {
		case bandLive:
			strength = 1.0
		case bandImminent:
			strength = 0.5
		case bandPre:
			strength = 0.2
		default:
			continue
		}

		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), ev.Symbol, ev.Name, ev.When.Format(time.RFC3339)),
			Name:             ev.Name,
			Source:           c.Name(),
			Category:         domain.CategoryMacro,
			Priority:         domain.PriorityMedium,
			Direction:        0,
			Strength:         strength * ev.Weight,
			Description:      fmt.Sprintf("%s scheduled at %s", ev.Name, ev.When.Format(time.RFC3339)),
			AffectedSymbols:  []string{ev.Symbol},
			TradeImplication: "Proximity to a scheduled macro event raises realized-volatility odds.",
			DetectedAt:       now,
			TTLHours:         1,
			Reliability:      c.Reliability(),
		})
	}

	if c.cache != nil {
		c.cache.SetNextEvent(nextMinutes)
	}
	return signals
}
