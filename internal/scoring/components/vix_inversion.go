// Package components implements the eight scorer input fetchers from SPEC_FULL.md §4.5, each
// normalizing its raw market reading to [0,1] and reporting whether its inputs were available.
package components

import (
	"math"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// VIXInversion scores the degree of VIX-level and VIX-spike stress.
// Faithful translation of the piecewise thresholds in SPEC_FULL.md §4.5 / spec.md §4.5.
func VIXInversion(snap marketdata.Snapshot) domain.ComponentScore {
	if !snap.VIXHealthy {
		return domain.ComponentScore{Name: domain.ComponentVIXInversion, Source: "vix_quote", Healthy: false}
	}

	close := snap.VIXClose
	var raw float64
	switch {
	case close >= 35:
		raw = 1.0
	case close >= 30:
		raw = 0.8
	case close >= 25:
		raw = 0.5
	case close >= 22:
		raw = 0.3
	case close >= 20:
		raw = 0.15
	default:
		raw = 0
	}

	// Boundary behavior: change exactly +10%/+5% counts as the higher bracket.
	change := snap.VIXChangePct
	if change >= 0.10 {
		raw += 0.3
	} else if change >= 0.05 {
		raw += 0.15
	}
	raw = math.Min(1.0, raw)

	return domain.ComponentScore{
		Name:    domain.ComponentVIXInversion,
		Raw:     round3(raw),
		Source:  "vix_quote",
		Healthy: true,
		Details: map[string]float64{
			"vix_close":      close,
			"vix_open":       snap.VIXOpen,
			"vix_change_pct": change,
		},
	}
}
