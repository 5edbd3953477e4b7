package calibration

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/scoring"
)

func newTestCalibrator(t *testing.T) *Calibrator {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "trade_feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	weights := scoring.NewWeightStore(filepath.Join(t.TempDir(), "blowup_weights.json"), zerolog.Nop())
	return New(db, weights, zerolog.Nop())
}

func feedback(tradeID string, direction domain.TradeDirection, pnl float64, triggers []string) domain.TradeFeedback {
	return domain.TradeFeedback{
		TradeID:          tradeID,
		Ticker:           "SPY",
		Direction:        direction,
		Mode:             domain.FeedbackModeBlowup,
		EntryAt:          time.Now().Add(-time.Hour),
		ExitAt:           time.Now(),
		RealizedPnLPct:   pnl,
		Conviction:       1,
		SnapshotScore:    75,
		SnapshotDirection: domain.DirectionBullish,
		SnapshotTriggers: triggers,
		SnapshotRegime:   domain.RegimeUnknown,
	}
}

func TestCalibrate_BelowMinimumTradeCount_Skips(t *testing.T) {
	c := newTestCalibrator(t)

	for i := 0; i < minTradesForCalibration-1; i++ {
		require.NoError(t, c.RecordTrade(feedback(
			"trade-"+time.Now().Add(time.Duration(i)*time.Second).Format(time.RFC3339Nano),
			domain.TradeDirectionCall, 1.0, []string{"vix_inversion:spike"},
		)))
	}

	result, err := c.Calibrate()
	require.NoError(t, err)

	assert.Equal(t, "skipped", result.Status)
	assert.False(t, result.Persisted)
	assert.Contains(t, result.Notes, "insufficient trade history")
}

func TestCalibrate_EnoughTrades_NewWeightsSumToOne(t *testing.T) {
	c := newTestCalibrator(t)

	for i := 0; i < minTradesForCalibration; i++ {
		pnl := -1.0
		if i%2 == 0 {
			pnl = 2.0
		}
		require.NoError(t, c.RecordTrade(feedback(
			"trade-"+time.Now().Add(time.Duration(i)*time.Millisecond).Format(time.RFC3339Nano),
			domain.TradeDirectionCall, pnl, []string{"vix_inversion:spike"},
		)))
	}

	result, err := c.Calibrate()
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)

	assert.InDelta(t, 1.0, result.NewWeights.Sum(), 0.001)
}

func TestRecordTrade_RequiresNoDB_IsNoopWhenDBNil(t *testing.T) {
	weights := scoring.NewWeightStore(filepath.Join(t.TempDir(), "blowup_weights.json"), zerolog.Nop())
	c := New(nil, weights, zerolog.Nop())

	err := c.RecordTrade(feedback("t1", domain.TradeDirectionCall, 1.0, nil))

	assert.NoError(t, err)
}

func TestStats_NoTrades_ReturnsZeroValues(t *testing.T) {
	c := newTestCalibrator(t)

	stats, err := c.Stats(30)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalTrades)
	assert.Equal(t, 0, stats.Wins)
	assert.Equal(t, 0.0, stats.WinRate)
}

func TestStats_CountsWinsByRealizedPnL(t *testing.T) {
	c := newTestCalibrator(t)

	require.NoError(t, c.RecordTrade(feedback("win-1", domain.TradeDirectionCall, 1.5, nil)))
	require.NoError(t, c.RecordTrade(feedback("loss-1", domain.TradeDirectionCall, -0.5, nil)))

	stats, err := c.Stats(30)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 0.5, stats.WinRate, 0.001)
}
