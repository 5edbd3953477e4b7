package components

import (
	"testing"

	"github.com/aristath/hydra/internal/marketdata"
	"github.com/stretchr/testify/assert"
)

func healthySnap() marketdata.Snapshot {
	return marketdata.Snapshot{
		VIXOpen: 18, VIXClose: 18, VIXChangePct: 0, VIXHealthy: true,
		SPYVolumeRatio: 1.0, SPYRangePct: 0.005, SPYChangePct: 0, SPYHealthy: true,
		TLTChangePct: 0, GLDChangePct: 0, CrossAssetHealthy: true,
		FundingRate: 0, OIDeltaPct: 0, CryptoHealthy: true,
		NextEventMinutes: 500, EventHealthy: true,
		SectorChangesPct: []float64{0, 0, 0, 0, 0}, BreadthHealthy: true,
	}
}

func TestVIXInversion_BoundaryInclusive(t *testing.T) {
	s := healthySnap()
	s.VIXClose = 20.0
	assert.Equal(t, 0.15, VIXInversion(s).Raw)

	s.VIXClose = 22.0
	assert.Equal(t, 0.3, VIXInversion(s).Raw)

	s.VIXClose = 19.99
	assert.Equal(t, 0.0, VIXInversion(s).Raw)
}

func TestVIXInversion_ChangeBoost(t *testing.T) {
	s := healthySnap()
	s.VIXClose = 18
	s.VIXChangePct = 0.10
	assert.Equal(t, 0.3, VIXInversion(s).Raw)
}

func TestVIXInversion_Unhealthy(t *testing.T) {
	s := healthySnap()
	s.VIXHealthy = false
	cs := VIXInversion(s)
	assert.False(t, cs.Healthy)
	assert.Equal(t, 0.0, cs.Raw)
}

func TestCryptoCascade_OIDropBoundary(t *testing.T) {
	s := healthySnap()
	s.OIDeltaPct = -0.03
	assert.InDelta(t, 0.3, CryptoCascade(s).Raw, 1e-6)

	s.OIDeltaPct = -0.029
	assert.Less(t, CryptoCascade(s).Raw, 0.3)
}

func TestFlowImbalance_BearishHint(t *testing.T) {
	s := healthySnap()
	s.VIXClose = 32
	s.SPYVolumeRatio = 2
	res := FlowImbalance(s)
	assert.Equal(t, "bearish", string(res.DirectionHint))
	assert.Greater(t, res.Score.Raw, 0.0)
}

func TestFlowImbalance_BullishHint(t *testing.T) {
	s := healthySnap()
	s.VIXClose = 12
	s.SPYVolumeRatio = 3
	res := FlowImbalance(s)
	assert.Equal(t, "bullish", string(res.DirectionHint))
}

func TestEventProximity_Boundary(t *testing.T) {
	s := healthySnap()
	s.NextEventMinutes = 30.0
	assert.Equal(t, 1.0, EventProximity(s).Raw)

	s.NextEventMinutes = 30.01
	assert.Equal(t, 0.5, EventProximity(s).Raw)
}

func TestEventProximity_NoKnownEvent(t *testing.T) {
	s := healthySnap()
	s.NextEventMinutes = -1
	cs := EventProximity(s)
	assert.False(t, cs.Healthy)
}

func TestCrossAsset_RequiresThreeAligned(t *testing.T) {
	s := healthySnap()
	s.SPYChangePct = 0.01
	s.TLTChangePct = 0.01
	s.GLDChangePct = -0.01
	s.VIXChangePct = -0.01
	res := CrossAsset(s)
	assert.Equal(t, 0.0, res.Score.Raw)

	s.TLTChangePct = -0.01
	res = CrossAsset(s)
	assert.Greater(t, res.Score.Raw, 0.0)
}

func TestBreadth_RequiresThreeMoving(t *testing.T) {
	s := healthySnap()
	s.SectorChangesPct = []float64{0.0001, 0.0001, 0, 0, 0}
	res := Breadth(s)
	assert.Equal(t, 0.0, res.Score.Raw)

	s.SectorChangesPct = []float64{-0.01, -0.01, -0.01, -0.01, 0.01}
	res = Breadth(s)
	assert.Greater(t, res.Score.Raw, 0.0)
	assert.Equal(t, "bearish", string(res.CollapseDirection))
}

func TestVolumeSurge_HighestBracket(t *testing.T) {
	s := healthySnap()
	s.SPYVolumeRatio = 4
	assert.Equal(t, 1.0, VolumeSurge(s).Raw)
}

func TestPremarketGap_Unhealthy(t *testing.T) {
	s := healthySnap()
	s.SPYHealthy = false
	cs := PremarketGap(s)
	assert.False(t, cs.Healthy)
}
