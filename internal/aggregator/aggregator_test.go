package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/domain"
)

type fakeScorer struct {
	result domain.BlowupResult
}

func (f fakeScorer) Latest() domain.BlowupResult { return f.result }

func TestConviction_NoSubsystemsWired_ReturnsZeroWithNoReasons(t *testing.T) {
	agg := New(fakeScorer{}, nil, nil, nil, nil)

	result := agg.Conviction(context.Background(), domain.DirectionBullish, 100, 95, 110)

	assert.Equal(t, 0, result.Modifier)
	assert.Nil(t, result.Reasons)
}

func TestSnapshot_NoSubsystemsWired_ReportsTypedDefaults(t *testing.T) {
	agg := New(fakeScorer{}, nil, nil, nil, nil)

	snap := agg.Snapshot(context.Background())

	assert.Equal(t, domain.DefaultGEXSnapshot(), snap.GEX)
	assert.Equal(t, domain.DefaultFlowSnapshot(), snap.Flow)
	assert.Equal(t, domain.DefaultDarkPoolSnapshot(), snap.DarkPool)
	assert.Equal(t, domain.DefaultSequenceAnalysis(), snap.Sequence)
	assert.Equal(t, 0, snap.ComponentsTotal)
}

func TestAnalyze_NoSequenceWired_ReturnsDefaultWithoutError(t *testing.T) {
	agg := New(fakeScorer{}, nil, nil, nil, nil)

	analysis, err := agg.Analyze(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSequenceAnalysis(), analysis)
}
