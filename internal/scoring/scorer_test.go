package scoring

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/marketdata"
)

func newTestScorer(t *testing.T) (*Scorer, *marketdata.Cache) {
	t.Helper()
	ws := NewWeightStore(filepath.Join(t.TempDir(), "blowup_weights.json"), zerolog.Nop())
	cache := marketdata.New()
	return New(ws, cache, nil, nil, zerolog.Nop()), cache
}

func TestTick_AllUnhealthy_ZeroConfidence(t *testing.T) {
	s, _ := newTestScorer(t)
	result := s.Tick()
	assert.Equal(t, 0, result.Probability)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, domain.RecommendationNoTrade, result.Recommendation)
	assert.Len(t, result.Components, 8)
}

func TestTick_BearishDirectionFromThreeVotes(t *testing.T) {
	s, cache := newTestScorer(t)
	cache.SetVIX(30, 32, 0.12)
	cache.SetSPY(2.5, 0.02, -0.015)
	cache.SetCrossAsset(-0.01, 0.005)
	cache.SetCrypto(0.0002, -0.01)
	cache.SetNextEvent(600)
	cache.SetBreadth([]float64{-0.01, -0.01, -0.01, -0.01, 0.005})

	result := s.Tick()
	assert.Equal(t, domain.DirectionBearish, result.Direction)
	assert.Equal(t, domain.RegimeRiskOff, result.Regime)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestTick_RingBounded(t *testing.T) {
	s, _ := newTestScorer(t)
	for i := 0; i < historyCapacity+10; i++ {
		s.Tick()
	}
	require.Len(t, s.History(0), historyCapacity)
}

func TestLatest_ComputesWhenRingEmpty(t *testing.T) {
	s, _ := newTestScorer(t)
	result := s.Latest()
	assert.Len(t, result.Components, 8)
}

func TestTriggers_ListRawAboveThreshold(t *testing.T) {
	s, cache := newTestScorer(t)
	cache.SetVIX(18, 36, 0)
	result := s.Tick()
	found := false
	for _, trig := range result.Triggers {
		if trig == "vix_inversion:1.000" {
			found = true
		}
	}
	assert.True(t, found, "expected vix_inversion trigger, got %v", result.Triggers)
}
