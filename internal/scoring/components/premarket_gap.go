package components

import (
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// PremarketGap scores the prior day's OHLC range as a percentage of close, per SPEC_FULL.md §4.5.
func PremarketGap(snap marketdata.Snapshot) domain.ComponentScore {
	if !snap.SPYHealthy {
		return domain.ComponentScore{Name: domain.ComponentPremarketGap, Source: "spy_quote", Healthy: false}
	}

	rangePct := snap.SPYRangePct

	var raw float64
	switch {
	case rangePct > 0.025:
		raw = 1.0
	case rangePct > 0.018:
		raw = 0.7
	case rangePct > 0.012:
		raw = 0.4
	case rangePct > 0.008:
		raw = 0.2
	default:
		raw = 0
	}

	return domain.ComponentScore{
		Name:    domain.ComponentPremarketGap,
		Raw:     round3(raw),
		Source:  "spy_quote",
		Healthy: true,
		Details: map[string]float64{"range_pct": rangePct},
	}
}
