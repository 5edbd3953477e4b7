package components

import (
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// VolumeSurge scores prior-day volume-vs-average and range, per SPEC_FULL.md §4.5.
func VolumeSurge(snap marketdata.Snapshot) domain.ComponentScore {
	if !snap.SPYHealthy {
		return domain.ComponentScore{Name: domain.ComponentVolumeSurge, Source: "spy_quote", Healthy: false}
	}

	volRatio := snap.SPYVolumeRatio
	rangePct := snap.SPYRangePct

	var raw float64
	switch {
	case volRatio > 3 || rangePct > 0.025:
		raw = 1.0
	case volRatio > 2 || rangePct > 0.02:
		raw = 0.6
	case volRatio > 1.5 || rangePct > 0.015:
		raw = 0.3
	case volRatio > 1.2 || rangePct > 0.01:
		raw = 0.15
	default:
		raw = 0
	}

	return domain.ComponentScore{
		Name:    domain.ComponentVolumeSurge,
		Raw:     round3(raw),
		Source:  "spy_quote",
		Healthy: true,
		Details: map[string]float64{
			"volume_ratio": volRatio,
			"range_pct":    rangePct,
		},
	}
}
