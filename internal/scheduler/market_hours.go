package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// MarketHoursService reports US equity market status and the market-hours-dependent cadences of
// the flow-classifier and dark-pool workers. Nothing constructs it: cmd/server/main.go schedules
// those workers on fixed cron strings (every 2 and every 5 minutes) whatever the market status.
type MarketHoursService struct {
	loc      *time.Location
	log      zerolog.Logger
	holidays map[string]bool // "2026-01-01" style keys
}

// NewMarketHoursService creates a new market hours service for US markets.
func NewMarketHoursService(log zerolog.Logger) *MarketHoursService {
	nyLoc, err := time.LoadLocation("America/New_York")
	if err != nil {
		nyLoc = time.UTC
	}

	s := &MarketHoursService{
		loc: nyLoc,
		log: log.With().Str("component", "market_hours").Logger(),
	}
	s.holidays = map[string]bool{
		"2026-01-01": true, // New Year's Day
		"2026-01-19": true, // MLK Day
		"2026-02-16": true, // Presidents Day
		"2026-04-10": true, // Good Friday
		"2026-05-25": true, // Memorial Day
		"2026-06-19": true, // Juneteenth
		"2026-07-03": true, // Independence Day (observed)
		"2026-09-07": true, // Labor Day
		"2026-11-26": true, // Thanksgiving
		"2026-12-25": true, // Christmas
	}
	return s
}

// IsOpen reports whether the US equity market is open at t (09:30-16:00 ET, weekdays, minus
// holidays).
func (s *MarketHoursService) IsOpen(t time.Time) bool {
	local := t.In(s.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if s.holidays[local.Format("2006-01-02")] {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// ClassifierInterval returns the flow-classifier worker's cadence: 2 minutes during market
// hours, 5 minutes outside, per SPEC_FULL.md §5.
func (s *MarketHoursService) ClassifierInterval(now time.Time) time.Duration {
	if s.IsOpen(now) {
		return 2 * time.Minute
	}
	return 5 * time.Minute
}

// DarkPoolInterval returns the dark-pool worker's cadence: 5 minutes during market hours,
// 15 minutes outside.
func (s *MarketHoursService) DarkPoolInterval(now time.Time) time.Duration {
	if s.IsOpen(now) {
		return 5 * time.Minute
	}
	return 15 * time.Minute
}

// IsFinalHour reports whether t falls in the final trading hour (15:00-16:00 ET). The gamma
// engine does not call it; it checks the final hour itself.
func (s *MarketHoursService) IsFinalHour(t time.Time) bool {
	local := t.In(s.loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 15*60 && minutes < 16*60
}
