// Package gamma implements the Gamma-Exposure subsystem: per-strike dealer hedging pressure,
// the gamma flip point, key support/resistance levels, and an adaptive refresh cadence, per
// SPEC_FULL.md §4.8. Grounded on original_source/backend/gex_engine.py.
package gamma

import (
	"encoding/json"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
)

// Thresholds mirror gex_engine.py's GEX_THRESHOLDS (in dollars of dealer delta-hedge exposure).
const (
	thresholdHighPositive   = 500_000_000
	thresholdNegative       = -200_000_000
	thresholdExtremeNeg     = -500_000_000
	flipNeutralBand         = 0.01  // regime NEUTRAL when within 1% of flip
	flipRealtimeBand        = 0.005 // refresh REALTIME and conviction bonus within 0.5% of flip
	charmFinalHourThreshold = 5_000_000
	riskFreeRate            = 0.05
)

const contractMultiplier = 100

// RefreshInterval names one of the four adaptive polling cadences.
type RefreshInterval int

const (
	RefreshRealtime RefreshInterval = 30
	RefreshFast     RefreshInterval = 60
	RefreshNormal   RefreshInterval = 300
	RefreshSlow     RefreshInterval = 900
)

// Engine computes GEX snapshots from a same-day options chain and holds the latest one for
// lock-free reads by the aggregator.
type Engine struct {
	db       *database.DB
	log      zerolog.Logger
	snapshot atomic.Pointer[domain.GEXSnapshot]
	cadence  atomic.Int64
}

// New wires an Engine against gex_history.db.
func New(db *database.DB, log zerolog.Logger) *Engine {
	e := &Engine{db: db, log: log.With().Str("component", "gamma").Logger()}
	e.cadence.Store(int64(RefreshNormal))
	def := domain.DefaultGEXSnapshot()
	e.snapshot.Store(&def)
	if db != nil {
		if err := e.migrate(); err != nil {
			e.log.Error().Err(err).Msg("failed to migrate gex_history schema")
		}
	}
	return e
}

func (e *Engine) migrate() error {
	_, err := e.db.Exec(`
		CREATE TABLE IF NOT EXISTS gex_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			symbol TEXT NOT NULL,
			spot REAL,
			total_gex REAL,
			call_gex REAL,
			put_gex REAL,
			flip_point REAL,
			regime TEXT,
			charm_per_hour REAL
		);
	`)
	return err
}

// Latest returns the most recently published snapshot, substituting the typed default if none
// has been computed yet.
func (e *Engine) Latest() domain.GEXSnapshot {
	return *e.snapshot.Load()
}

// RefreshSeconds reports the engine's current adaptive polling cadence.
func (e *Engine) RefreshSeconds() int {
	return int(e.cadence.Load())
}

// Update computes a fresh GEX snapshot from a same-day options chain and publishes it. Only
// contracts with ExpiryDays <= 0 are considered same-day; callers should pre-filter, but Update
// also defends against a mixed batch.
func (e *Engine) Update(symbol string, spot float64, contracts []domain.OptionContract, now time.Time) domain.GEXSnapshot {
	tau := timeToExpiryYears(now)

	var totalGEX, callGEX, putGEX, totalCharm, totalVanna float64
	byStrike := make(map[float64]float64)

	for _, c := range contracts {
		if c.Gamma <= 0 || c.OpenInterest <= 0 || spot <= 0 || c.ExpiryDays > 0 {
			continue
		}
		direction := -1.0
		if c.IsCall {
			direction = 1.0
		}
		gex := c.Gamma * c.OpenInterest * contractMultiplier * spot * spot * direction
		totalGEX += gex
		if c.IsCall {
			callGEX += gex
		} else {
			putGEX += gex
		}
		byStrike[c.Strike] += gex

		charm := calculateCharm(c.Gamma, c.ImpliedVol, spot, c.Strike, tau)
		totalCharm += charm * c.OpenInterest * contractMultiplier * direction

		vanna := calculateVanna(c.Vega, spot, c.Strike, c.ImpliedVol, tau)
		totalVanna += vanna * c.OpenInterest * contractMultiplier * direction
	}

	flip, flipDistPct := findFlipPoint(byStrike, spot)
	regime := deriveRegime(totalGEX, flipDistPct)

	hoursRemaining := tau * 365.25 * 24
	charmPerHour := 0.0
	if hoursRemaining > 0 {
		charmPerHour = totalCharm / hoursRemaining
	}

	levels := identifyKeyLevels(byStrike, spot, 5)
	cadence := refreshCadence(now, totalGEX, flipDistPct)
	e.cadence.Store(int64(cadence))

	snap := domain.GEXSnapshot{
		Timestamp:      now,
		Symbol:         symbol,
		Spot:           round2(spot),
		TotalGEX:       math.Round(totalGEX),
		CallGEX:        math.Round(callGEX),
		PutGEX:         math.Round(putGEX),
		GEXByStrike:    strikeList(byStrike),
		FlipPoint:      round2(flip),
		Regime:         regime,
		KeyLevels:      levels,
		CharmPerHour:   math.Round(charmPerHour),
		RefreshSeconds: int(cadence),
	}

	e.snapshot.Store(&snap)
	if e.db != nil {
		if err := e.persist(snap); err != nil {
			e.log.Error().Err(err).Msg("failed to persist gex tick")
		}
	}
	return snap
}

func (e *Engine) persist(snap domain.GEXSnapshot) error {
	_, err := e.db.Exec(
		`INSERT INTO gex_history (ts, symbol, spot, total_gex, call_gex, put_gex, flip_point, regime, charm_per_hour)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.UTC().Format(time.RFC3339), snap.Symbol, snap.Spot, snap.TotalGEX, snap.CallGEX,
		snap.PutGEX, snap.FlipPoint, string(snap.Regime), snap.CharmPerHour,
	)
	return err
}

func calculateCharm(gamma, iv, spot, strike, tau float64) float64 {
	if tau <= 0 || iv <= 0 || spot <= 0 || strike <= 0 {
		return 0
	}
	d1 := (math.Log(spot/strike) + (riskFreeRate+iv*iv/2)*tau) / (iv * math.Sqrt(tau))
	return -gamma * (riskFreeRate - d1*iv/(2*tau))
}

func calculateVanna(vega, spot, strike, iv, tau float64) float64 {
	if tau <= 0 || iv <= 0 || spot <= 0 || vega == 0 {
		return 0
	}
	d1 := (math.Log(spot/strike) + (riskFreeRate+iv*iv/2)*tau) / (iv * math.Sqrt(tau))
	return vega * d1 / (spot * iv * math.Sqrt(tau))
}

// findFlipPoint returns the zero-crossing of cumulative GEX (lowest strike upward) nearest spot,
// and the fractional distance of that crossing from spot (1.0 if none found).
func findFlipPoint(byStrike map[float64]float64, spot float64) (float64, float64) {
	if len(byStrike) == 0 {
		return 0, 1.0
	}
	strikes := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	cumulative := make([]float64, len(strikes))
	var running float64
	for i, s := range strikes {
		running += byStrike[s]
		cumulative[i] = running
	}

	var best float64
	bestDist := math.MaxFloat64
	found := false
	for i := 0; i < len(strikes)-1; i++ {
		g1, g2 := cumulative[i], cumulative[i+1]
		if g1*g2 >= 0 {
			continue
		}
		s1, s2 := strikes[i], strikes[i+1]
		flip := s1 + (s2-s1)*math.Abs(g1)/(math.Abs(g1)+math.Abs(g2))
		dist := math.Abs(flip - spot)
		if dist < bestDist {
			bestDist = dist
			best = flip
			found = true
		}
	}
	if !found {
		return 0, 1.0
	}
	if spot <= 0 {
		return best, 1.0
	}
	return best, math.Abs(best-spot) / spot
}

func deriveRegime(totalGEX, flipDistPct float64) domain.GEXRegime {
	switch {
	case totalGEX > thresholdHighPositive:
		return domain.GEXRegimePositive
	case totalGEX < thresholdNegative:
		return domain.GEXRegimeNegative
	case flipDistPct < flipNeutralBand:
		return domain.GEXRegimeNeutral
	case totalGEX > 0:
		return domain.GEXRegimePositive
	default:
		return domain.GEXRegimeNegative
	}
}

func identifyKeyLevels(byStrike map[float64]float64, spot float64, topN int) []domain.GEXLevel {
	type kv struct {
		strike, gex float64
	}
	all := make([]kv, 0, len(byStrike))
	for k, v := range byStrike {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return math.Abs(all[i].gex) > math.Abs(all[j].gex) })

	limit := topN * 2
	if limit > len(all) {
		limit = len(all)
	}

	levels := make([]domain.GEXLevel, 0, limit)
	for _, e := range all[:limit] {
		if e.gex <= 0 {
			continue
		}
		kind := "resistance"
		if e.strike < spot {
			kind = "support"
		}
		levels = append(levels, domain.GEXLevel{Strike: e.strike, GEX: e.gex, Kind: kind})
	}

	sort.Slice(levels, func(i, j int) bool { return math.Abs(levels[i].Strike-spot) < math.Abs(levels[j].Strike-spot) })
	if len(levels) > topN {
		levels = levels[:topN]
	}
	return levels
}

func strikeList(byStrike map[float64]float64) []domain.GEXStrike {
	out := make([]domain.GEXStrike, 0, len(byStrike))
	for strike, gex := range byStrike {
		out = append(out, domain.GEXStrike{Strike: strike, GEX: math.Round(gex)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

func timeToExpiryYears(now time.Time) float64 {
	marketClose := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, now.Location())
	if !now.Before(marketClose) {
		return 1e-6
	}
	remaining := marketClose.Sub(now).Seconds()
	years := remaining / (365.25 * 24 * 3600)
	if years < 1e-6 {
		return 1e-6
	}
	return years
}

// refreshCadence applies the time-of-day baseline, then tightens it near the flip point or under
// extreme negative GEX, per gex_engine.py's get_refresh_interval.
func refreshCadence(now time.Time, totalGEX, flipDistPct float64) RefreshInterval {
	hm := now.Hour()*60 + now.Minute()
	var baseline RefreshInterval
	switch {
	case hm < 9*60+30:
		baseline = RefreshSlow
	case hm < 10*60:
		baseline = RefreshFast
	case hm < 14*60:
		baseline = RefreshNormal
	case hm < 15*60:
		baseline = RefreshFast
	default:
		baseline = RefreshRealtime
	}

	if flipDistPct < flipRealtimeBand {
		return RefreshRealtime
	}
	if totalGEX < thresholdExtremeNeg && baseline > RefreshFast {
		return RefreshFast
	}
	return baseline
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ConvictionModifier implements the gamma subsystem's conviction rule (SPEC_FULL.md §4.8):
// +10 if regime NEGATIVE; -15 if POSITIVE and |total_gex| exceeds the high-positive threshold;
// +5 if within 0.5% of the flip point; +5 in the final trading hour with high charm flow.
func (e *Engine) ConvictionModifier(now time.Time) domain.ConvictionResult {
	snap := e.Latest()
	var modifier int
	var reasons []string

	switch {
	case snap.Regime == domain.GEXRegimeNegative:
		modifier += 10
		reasons = append(reasons, "negative GEX favors directional trades")
	case snap.Regime == domain.GEXRegimePositive && math.Abs(snap.TotalGEX) > thresholdHighPositive:
		modifier -= 15
		reasons = append(reasons, "high positive GEX suppresses directional moves")
	}

	if snap.Spot > 0 {
		flipDist := math.Abs(snap.FlipPoint-snap.Spot) / snap.Spot
		if flipDist < flipRealtimeBand {
			modifier += 5
			reasons = append(reasons, "near gamma flip, explosive move possible")
		}
	}

	hm := now.Hour()*60 + now.Minute()
	if hm >= 15*60 && math.Abs(snap.CharmPerHour) > charmFinalHourThreshold {
		modifier += 5
		reasons = append(reasons, "high charm flow accelerating moves into the close")
	}

	return domain.ConvictionResult{Modifier: modifier, Reasons: reasons}
}

// MarshalSnapshot is a test/debug helper rendering the latest snapshot as JSON.
func (e *Engine) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(e.Latest())
}

// Name reports the subsystem's identifier. Engine has no Run method and is not itself a
// scheduler.Job; the scheduled gamma job is an adapter that calls Update.
func (e *Engine) Name() string { return "gamma" }
