package components

import (
	"math"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// BreadthResult carries the raw score plus the collapse direction the scorer consults when
// tallying bearish/bullish votes (SPEC_FULL.md §4.6).
type BreadthResult struct {
	Score            domain.ComponentScore
	CollapseDirection domain.DirectionHint
}

// Breadth scores sector-ETF breadth collapse, per SPEC_FULL.md §4.5.
func Breadth(snap marketdata.Snapshot) BreadthResult {
	if !snap.BreadthHealthy || len(snap.SectorChangesPct) < 5 {
		return BreadthResult{
			Score: domain.ComponentScore{Name: domain.ComponentBreadth, Source: "sector_breadth", Healthy: false},
		}
	}

	const threshold = 0.001
	var ups, downs int
	for _, m := range snap.SectorChangesPct {
		if m > threshold {
			ups++
		} else if m < -threshold {
			downs++
		}
	}

	if ups+downs < 3 {
		return BreadthResult{
			Score: domain.ComponentScore{
				Name: domain.ComponentBreadth, Source: "sector_breadth", Healthy: true,
				Details: map[string]float64{"up_count": float64(ups), "down_count": float64(downs)},
			},
		}
	}

	maxCount := math.Max(float64(ups), float64(downs))
	ratio := maxCount / 5.0

	var raw float64
	switch {
	case ratio > 0.70:
		raw = (ratio - 0.70) / 0.20
	case ratio > 0.60:
		raw = 0.3
	default:
		raw = 0
	}
	raw = math.Max(0, math.Min(1, raw))

	direction := domain.DirectionHintNone
	if ups+downs >= 3 {
		if downs > ups {
			direction = domain.DirectionHintBearish
		} else if ups > downs {
			direction = domain.DirectionHintBullish
		}
	}

	return BreadthResult{
		Score: domain.ComponentScore{
			Name:    domain.ComponentBreadth,
			Raw:     round3(raw),
			Source:  "sector_breadth",
			Healthy: true,
			Details: map[string]float64{"up_count": float64(ups), "down_count": float64(downs), "ratio": ratio},
		},
		CollapseDirection: direction,
	}
}
