package components

import (
	"math"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// CrossAssetResult carries the raw score plus the alignment direction the scorer consults when
// tallying bearish/bullish votes (SPEC_FULL.md §4.6).
type CrossAssetResult struct {
	Score     domain.ComponentScore
	Alignment domain.DirectionHint
}

// CrossAsset scores same-direction alignment across SPY/TLT/GLD/VIX moves, per SPEC_FULL.md §4.5.
func CrossAsset(snap marketdata.Snapshot) CrossAssetResult {
	if !snap.SPYHealthy || !snap.CrossAssetHealthy || !snap.VIXHealthy {
		return CrossAssetResult{
			Score: domain.ComponentScore{Name: domain.ComponentCrossAsset, Source: "cross_asset_quote", Healthy: false},
		}
	}

	moves := []float64{snap.SPYChangePct, snap.TLTChangePct, snap.GLDChangePct, snap.VIXChangePct}

	const threshold = 0.001
	var ups, downs int
	var upSum, downSum float64
	for _, m := range moves {
		if m > threshold {
			ups++
			upSum += math.Abs(m)
		} else if m < -threshold {
			downs++
			downSum += math.Abs(m)
		}
	}

	var raw float64
	alignment := domain.DirectionHintNone

	aligned := ups
	avgMove := 0.0
	if ups > 0 {
		avgMove = upSum / float64(ups)
	}
	if downs > ups {
		aligned = downs
		if downs > 0 {
			avgMove = downSum / float64(downs)
		}
	}

	if aligned >= 3 {
		raw = (float64(aligned) / 4.0) * (avgMove / 0.01)
		raw = math.Max(0, math.Min(1, raw))
		if aligned == ups {
			alignment = domain.DirectionHintBullish
		} else {
			alignment = domain.DirectionHintBearish
		}
	}

	return CrossAssetResult{
		Score: domain.ComponentScore{
			Name:    domain.ComponentCrossAsset,
			Raw:     round3(raw),
			Source:  "cross_asset_quote",
			Healthy: true,
			Details: map[string]float64{
				"spy_change_pct": snap.SPYChangePct,
				"tlt_change_pct": snap.TLTChangePct,
				"gld_change_pct": snap.GLDChangePct,
				"vix_change_pct": snap.VIXChangePct,
				"aligned_count":  float64(aligned),
			},
		},
		Alignment: alignment,
	}
}
