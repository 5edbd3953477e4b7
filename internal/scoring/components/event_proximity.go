package components

import (
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

// EventProximity scores how close the next scheduled calendar event is, per SPEC_FULL.md §4.5.
func EventProximity(snap marketdata.Snapshot) domain.ComponentScore {
	if !snap.EventHealthy || snap.NextEventMinutes < 0 {
		return domain.ComponentScore{Name: domain.ComponentEventProximity, Source: "calendar", Healthy: false}
	}

	minutes := snap.NextEventMinutes

	var raw float64
	switch {
	case minutes <= 30:
		raw = 1.0
	case minutes <= 120:
		raw = 0.5
	case minutes <= 1440:
		raw = 0.2
	default:
		raw = 0
	}

	return domain.ComponentScore{
		Name:    domain.ComponentEventProximity,
		Raw:     round3(raw),
		Source:  "calendar",
		Healthy: true,
		Details: map[string]float64{"minutes_until": minutes},
	}
}
