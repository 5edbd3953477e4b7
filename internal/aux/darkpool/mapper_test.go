package darkpool

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/hydra/internal/domain"
)

func TestLatest_BeforeAnyUpdate_ReturnsTypedDefault(t *testing.T) {
	m := New(nil, zerolog.Nop())

	assert.Equal(t, domain.DefaultDarkPoolSnapshot(), m.Latest())
}

func TestUpdate_FiltersSubThresholdPrints(t *testing.T) {
	m := New(nil, zerolog.Nop())

	trades := []domain.RawTrade{
		{Timestamp: time.Now(), Symbol: "SPY", Price: 450, Size: 100, Notional: 1000, DarkPool: true},
	}
	nbbo := domain.NBBO{Bid: 449.9, Ask: 450.1}

	snap := m.Update("SPY", 450, trades, nbbo)

	assert.Empty(t, snap.Clusters)
}

func TestUpdate_ClustersQualifyingBlockPrint(t *testing.T) {
	m := New(nil, zerolog.Nop())

	trades := []domain.RawTrade{
		{Timestamp: time.Now(), Symbol: "SPY", Price: 450.10, Size: 20000, Notional: 9_000_000, DarkPool: true},
	}
	nbbo := domain.NBBO{Bid: 449.9, Ask: 450.1}

	snap := m.Update("SPY", 448, trades, nbbo)

	assert.Len(t, snap.Clusters, 1)
	assert.Equal(t, domain.StrengthHigh, snap.Clusters[0].Strength)
}

func TestUpdate_IgnoresNonDarkPoolPrints(t *testing.T) {
	m := New(nil, zerolog.Nop())

	trades := []domain.RawTrade{
		{Timestamp: time.Now(), Symbol: "SPY", Price: 450, Size: 50000, Notional: 10_000_000, DarkPool: false},
	}
	nbbo := domain.NBBO{Bid: 449.9, Ask: 450.1}

	snap := m.Update("SPY", 450, trades, nbbo)

	assert.Empty(t, snap.Clusters)
}
