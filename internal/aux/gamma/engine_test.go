package gamma

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
)

func TestLatest_BeforeAnyUpdate_ReturnsTypedDefault(t *testing.T) {
	e := New(nil, zerolog.Nop())

	assert.Equal(t, domain.DefaultGEXSnapshot(), e.Latest())
}

func TestUpdate_CallHeavyChain_YieldsPositiveRegime(t *testing.T) {
	e := New(nil, zerolog.Nop())

	contracts := []domain.OptionContract{
		{Strike: 450, IsCall: true, OpenInterest: 10000, ImpliedVol: 0.2, Gamma: 0.05, Vega: 1, ExpiryDays: 0},
		{Strike: 460, IsCall: true, OpenInterest: 8000, ImpliedVol: 0.2, Gamma: 0.04, Vega: 1, ExpiryDays: 0},
	}

	snap := e.Update("SPY", 455, contracts, time.Now())

	assert.Equal(t, domain.GEXRegimePositive, snap.Regime)
	assert.Greater(t, snap.TotalGEX, 0.0)
	assert.Equal(t, snap.TotalGEX, e.Latest().TotalGEX)
}

func TestUpdate_IgnoresNonSameDayContracts(t *testing.T) {
	e := New(nil, zerolog.Nop())

	contracts := []domain.OptionContract{
		{Strike: 450, IsCall: true, OpenInterest: 10000, ImpliedVol: 0.2, Gamma: 0.05, Vega: 1, ExpiryDays: 5},
	}

	snap := e.Update("SPY", 455, contracts, time.Now())

	assert.Equal(t, 0.0, snap.TotalGEX)
}

func TestUpdate_PersistsToGexHistory(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "gex_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := New(db, zerolog.Nop())
	contracts := []domain.OptionContract{
		{Strike: 450, IsCall: true, OpenInterest: 10000, ImpliedVol: 0.2, Gamma: 0.05, Vega: 1, ExpiryDays: 0},
	}
	e.Update("SPY", 455, contracts, time.Now())

	row := db.Conn().QueryRow(`SELECT COUNT(*) FROM gex_history`)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}
