package components

import (
	"math"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

const epsilon = 1e-9

// CryptoCascade scores perpetual funding-rate extremity and open-interest delta per
// SPEC_FULL.md §4.5. OIDeltaPct is a fraction (e.g. -0.03 for a 3% drop), not a whole percent.
func CryptoCascade(snap marketdata.Snapshot) domain.ComponentScore {
	if !snap.CryptoHealthy {
		return domain.ComponentScore{Name: domain.ComponentCryptoCascade, Source: "perp_funding_oi", Healthy: false}
	}

	funding := snap.FundingRate
	oiDelta := snap.OIDeltaPct

	var raw float64
	if math.Abs(funding) > 0.0005 {
		raw += math.Min(0.5, math.Abs(funding)/0.001)
	}
	if oiDelta <= -0.03+epsilon {
		raw += math.Min(0.5, math.Abs(oiDelta)*10)
	} else if oiDelta > 0.05 {
		raw += math.Min(0.3, oiDelta*5)
	}
	raw = math.Min(1.0, raw)

	return domain.ComponentScore{
		Name:    domain.ComponentCryptoCascade,
		Raw:     round3(raw),
		Source:  "perp_funding_oi",
		Healthy: true,
		Details: map[string]float64{
			"funding_rate": funding,
			"oi_delta_pct": oiDelta,
		},
	}
}
