package components

import (
	"math"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// FlowImbalanceResult carries the raw score plus the direction hint the scorer consults when
// tallying bearish/bullish votes (SPEC_FULL.md §4.6).
type FlowImbalanceResult struct {
	Score domain.ComponentScore
	DirectionHint domain.DirectionHint
}

// FlowImbalance scores SPY volume-ratio/VIX alignment per SPEC_FULL.md §4.5.
func FlowImbalance(snap marketdata.Snapshot) FlowImbalanceResult {
	if !snap.VIXHealthy || !snap.SPYHealthy {
		return FlowImbalanceResult{
			Score: domain.ComponentScore{Name: domain.ComponentFlowImbalance, Source: "vix_spy_quote", Healthy: false},
		}
	}

	vix := snap.VIXClose
	volRatio := snap.SPYVolumeRatio

	var raw float64
	hint := domain.DirectionHintNone

	switch {
	case vix > 25 && volRatio > 1.5:
		raw = (vix - 20) / 20 * (volRatio / 2)
		hint = domain.DirectionHintBearish
	case vix > 30:
		raw = (vix - 20) / 25
		hint = domain.DirectionHintBearish
	case vix < 15 && volRatio > 2:
		raw = volRatio / 4
		hint = domain.DirectionHintBullish
	default:
		raw = 0
	}

	raw = math.Max(0, math.Min(1, raw))

	return FlowImbalanceResult{
		Score: domain.ComponentScore{
			Name:    domain.ComponentFlowImbalance,
			Raw:     round3(raw),
			Source:  "vix_spy_quote",
			Healthy: true,
			Details: map[string]float64{
				"vix_close":        vix,
				"spy_volume_ratio": volRatio,
			},
		},
		DirectionHint: hint,
	}
}
