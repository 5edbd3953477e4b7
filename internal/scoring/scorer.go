// Package scoring implements the Blowup Scorer: one tick procedure that blends the eight
// components (internal/scoring/components) into a single probability, direction, regime, and
// recommendation, per SPEC_FULL.md §4.6.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/events"
	"github.com/aristath/hydra/internal/marketdata"
	"github.com/aristath/hydra/internal/scoring/components"
)

const historyCapacity = 100

// Scorer owns the bounded in-memory ring of ticks plus the durable blowup_history.db writer.
type Scorer struct {
	weights *WeightStore
	cache   *marketdata.Cache
	db      *database.DB
	events  *events.Manager
	log     zerolog.Logger

	mu   sync.RWMutex
	ring []domain.BlowupResult
}

// New wires a Scorer against the shared weight store, market-data cache, and blowup_history.db.
func New(weights *WeightStore, cache *marketdata.Cache, db *database.DB, em *events.Manager, log zerolog.Logger) *Scorer {
	s := &Scorer{
		weights: weights,
		cache:   cache,
		db:      db,
		events:  em,
		log:     log.With().Str("component", "scorer").Logger(),
	}
	if db != nil {
		if err := s.migrate(); err != nil {
			s.log.Error().Err(err).Msg("failed to migrate blowup_history schema")
		}
	}
	return s
}

func (s *Scorer) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS blowup_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			score INTEGER NOT NULL,
			direction TEXT NOT NULL,
			regime TEXT NOT NULL,
			confidence REAL NOT NULL,
			triggers TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			components TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS blowup_accuracy (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			score INTEGER NOT NULL,
			move_30min_pct REAL,
			predicted_direction TEXT NOT NULL,
			actual_direction TEXT,
			triggers TEXT NOT NULL
		);
	`)
	return err
}

// Tick runs one scorer pass: evaluate all eight components against the current market-data
// snapshot and weight set, derive probability/direction/regime/recommendation, and publish the
// result to the ring buffer, durable history, and the event bus.
func (s *Scorer) Tick() domain.BlowupResult {
	snap := s.cache.Snapshot()
	weights := s.weights.Current()

	vix := components.VIXInversion(snap)
	flow := components.FlowImbalance(snap)
	crypto := components.CryptoCascade(snap)
	gap := components.PremarketGap(snap)
	event := components.EventProximity(snap)
	cross := components.CrossAsset(snap)
	volume := components.VolumeSurge(snap)
	breadth := components.Breadth(snap)

	scores := map[domain.ComponentName]domain.ComponentScore{
		domain.ComponentVIXInversion:   vix,
		domain.ComponentFlowImbalance:  flow.Score,
		domain.ComponentCryptoCascade:  crypto,
		domain.ComponentPremarketGap:   gap,
		domain.ComponentEventProximity: event,
		domain.ComponentCrossAsset:     cross.Score,
		domain.ComponentVolumeSurge:    volume,
		domain.ComponentBreadth:        breadth.Score,
	}

	var weightedSum float64
	var healthyCount int
	scoredComponents := make([]domain.ComponentScore, 0, len(domain.ComponentOrder))
	triggers := make([]string, 0, len(domain.ComponentOrder))

	for _, name := range domain.ComponentOrder {
		cs := scores[name]
		w := weights[name]
		cs.Weight = w
		if cs.Healthy {
			cs.Weighted = cs.Raw * w
			weightedSum += cs.Weighted
			healthyCount++
			if cs.Raw > 0.3 {
				triggers = append(triggers, fmt.Sprintf("%s:%.3f", name, cs.Raw))
			}
		} else {
			cs.Raw = 0
			cs.Weighted = 0
		}
		scoredComponents = append(scoredComponents, cs)
	}

	probability := int(math.Max(0, math.Min(100, math.Round(100*weightedSum))))
	confidence := float64(healthyCount) / float64(len(domain.ComponentOrder))

	direction := tallyDirection(vix, flow, cross, breadth)
	regime := deriveRegime(vix, cross.Alignment, direction)
	recommendation := deriveRecommendation(confidence, probability, direction)

	result := domain.BlowupResult{
		Timestamp:       time.Now(),
		Probability:     probability,
		Direction:       direction,
		Regime:          regime,
		Confidence:      confidence,
		Triggers:        triggers,
		Recommendation:  recommendation,
		Components:      scoredComponents,
		EventsNext30Min: eventsNext30Min(snap),
	}

	s.publish(result)
	return result
}

func tallyDirection(vix domain.ComponentScore, flow components.FlowImbalanceResult, cross components.CrossAssetResult, breadth components.BreadthResult) domain.Direction {
	var bearish, bullish int

	if vix.Healthy && vix.Raw > 0.3 {
		bearish++
	}
	switch flow.DirectionHint {
	case domain.DirectionHintBearish:
		bearish++
	case domain.DirectionHintBullish:
		bullish++
	}
	switch cross.Alignment {
	case domain.DirectionHintBearish:
		bearish++
	case domain.DirectionHintBullish:
		bullish++
	}
	switch breadth.CollapseDirection {
	case domain.DirectionHintBearish:
		bearish++
	case domain.DirectionHintBullish:
		bullish++
	}

	switch {
	case bearish >= 3:
		return domain.DirectionBearish
	case bullish >= 3:
		return domain.DirectionBullish
	default:
		return domain.DirectionNeutral
	}
}

// deriveRegime reads the VIX close explicitly from the vix_inversion component's Details map
// (the resolved convention for this cross-component read — see DESIGN.md) rather than
// re-deriving it from the snapshot independently. TRANSITION requires an actual cross-asset
// alignment (blowup_detector.py:1168's `elif alignment:`), not merely a present-but-flat
// cross-asset reading — alignment is non-empty only when >=3 assets are same-sign.
func deriveRegime(vix domain.ComponentScore, crossAlignment domain.DirectionHint, direction domain.Direction) domain.Regime {
	vixClose, vixKnown := vix.Details["vix_close"]
	switch {
	case vixKnown && vixClose > 25 || direction == domain.DirectionBearish:
		return domain.RegimeRiskOff
	case vixKnown && vixClose < 18 && direction == domain.DirectionBullish:
		return domain.RegimeRiskOn
	case crossAlignment != domain.DirectionHintNone:
		return domain.RegimeTransition
	default:
		return domain.RegimeUnknown
	}
}

func deriveRecommendation(confidence float64, probability int, direction domain.Direction) domain.Recommendation {
	switch {
	case confidence < 0.5:
		return domain.RecommendationNoTrade
	case probability < 50:
		return domain.RecommendationScalpOnly
	case probability < 70:
		return domain.RecommendationStraddle
	default:
		switch direction {
		case domain.DirectionBearish:
			return domain.RecommendationDirectionalPut
		case domain.DirectionBullish:
			return domain.RecommendationDirectionalCall
		default:
			return domain.RecommendationStraddle
		}
	}
}

func eventsNext30Min(snap marketdata.Snapshot) int {
	if snap.EventHealthy && snap.NextEventMinutes >= 0 && snap.NextEventMinutes <= 30 {
		return 1
	}
	return 0
}

func (s *Scorer) publish(result domain.BlowupResult) {
	s.mu.Lock()
	s.ring = append(s.ring, result)
	if len(s.ring) > historyCapacity {
		s.ring = s.ring[len(s.ring)-historyCapacity:]
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.persist(result); err != nil {
			s.log.Error().Err(err).Msg("failed to persist blowup tick")
		}
	}

	if s.events != nil {
		s.events.Emit(events.BlowupScored, "scorer", map[string]interface{}{
			"probability": result.Probability,
			"direction":   result.Direction,
			"regime":      result.Regime,
		})
	}
}

func (s *Scorer) persist(result domain.BlowupResult) error {
	triggersJSON, err := json.Marshal(result.Triggers)
	if err != nil {
		return err
	}
	componentsJSON, err := json.Marshal(result.Components)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO blowup_history (ts, score, direction, regime, confidence, triggers, recommendation, components)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Timestamp.UTC().Format(time.RFC3339),
		result.Probability,
		string(result.Direction),
		string(result.Regime),
		result.Confidence,
		string(triggersJSON),
		string(result.Recommendation),
		string(componentsJSON),
	)
	return err
}

// Latest returns the most recent tick, computing one on demand if the ring is empty.
func (s *Scorer) Latest() domain.BlowupResult {
	s.mu.RLock()
	n := len(s.ring)
	if n > 0 {
		latest := s.ring[n-1]
		s.mu.RUnlock()
		return latest
	}
	s.mu.RUnlock()
	return s.Tick()
}

// History returns up to count most recent ticks, newest last.
func (s *Scorer) History(count int) []domain.BlowupResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.ring)
	if count <= 0 || count > n {
		count = n
	}
	out := make([]domain.BlowupResult, count)
	copy(out, s.ring[n-count:])
	return out
}

// Name satisfies the scheduler.Job interface.
func (s *Scorer) Name() string { return "scorer" }

// Run satisfies the scheduler.Job interface.
func (s *Scorer) Run() error {
	s.Tick()
	return nil
}
