// Package darkpool implements the Dark-Pool subsystem: price-clustered institutional block
// prints, NBBO-derived side classification, and a conviction rule, per SPEC_FULL.md §4.10.
// Grounded on original_source/backend/dark_pool_mapper.py.
package darkpool

import (
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/database"
	"github.com/aristath/hydra/internal/domain"
)

// Thresholds mirror dark_pool_mapper.py's MIN_BLOCK_SIZE / MIN_NOTIONAL / PRICE_CLUSTER_SIZE.
const (
	minBlockSize      = 10_000
	minNotional       = 500_000
	priceClusterSize  = 0.50
)

// Mapper clusters recent dark-pool prints into price levels and tracks the nearest
// support/resistance, holding the latest snapshot for lock-free aggregator reads.
type Mapper struct {
	db       *database.DB
	log      zerolog.Logger
	snapshot atomic.Pointer[domain.DarkPoolSnapshot]
}

// New wires a Mapper against dark_pool_levels.db.
func New(db *database.DB, log zerolog.Logger) *Mapper {
	m := &Mapper{db: db, log: log.With().Str("component", "darkpool").Logger()}
	def := domain.DefaultDarkPoolSnapshot()
	m.snapshot.Store(&def)
	if db != nil {
		if err := m.migrate(); err != nil {
			m.log.Error().Err(err).Msg("failed to migrate dark_pool_levels schema")
		}
	}
	return m
}

func (m *Mapper) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS dark_pool_prints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			symbol TEXT NOT NULL,
			price REAL,
			size REAL,
			notional REAL,
			side TEXT
		);
		CREATE TABLE IF NOT EXISTS dark_pool_levels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			symbol TEXT NOT NULL,
			price_level REAL,
			total_volume REAL,
			total_notional REAL,
			trade_count INTEGER,
			buy_volume REAL,
			sell_volume REAL,
			strength TEXT,
			UNIQUE(date, symbol, price_level)
		);
	`)
	return err
}

// Latest returns the most recently published snapshot, substituting the typed default when no
// batch has been mapped yet.
func (m *Mapper) Latest() domain.DarkPoolSnapshot {
	return *m.snapshot.Load()
}

func clusterPrice(price float64) float64 {
	return math.Round(price/priceClusterSize) * priceClusterSize
}

// determineSide classifies a print against the NBBO snapshot passed to Update. Dark-pool prints
// report with a reporting delay the NBBO argument does not necessarily account for, so side
// classification on borderline prints is an approximation, accepted as-is.
func determineSide(price float64, nbbo domain.NBBO) domain.TradeSide {
	if nbbo.Bid <= 0 || nbbo.Ask <= 0 {
		return domain.TradeSideUnknown
	}
	mid := nbbo.Mid()
	spread := nbbo.Spread()
	if spread <= 0 {
		return domain.TradeSideUnknown
	}
	switch {
	case price >= mid+spread*0.25:
		return domain.TradeSideBuy
	case price <= mid-spread*0.25:
		return domain.TradeSideSell
	default:
		return domain.TradeSideUnknown
	}
}

func determineStrength(notional float64, tradeCount int) domain.ClusterStrength {
	switch {
	case notional >= 10_000_000 || tradeCount >= 20:
		return domain.StrengthVeryHigh
	case notional >= 5_000_000 || tradeCount >= 10:
		return domain.StrengthHigh
	case notional >= 2_000_000 || tradeCount >= 5:
		return domain.StrengthMedium
	default:
		return domain.StrengthLow
	}
}

// Update filters trades for institutional dark-pool blocks, clusters them into price levels
// against the given NBBO and spot, and publishes + persists the resulting snapshot.
func (m *Mapper) Update(symbol string, spot float64, trades []domain.RawTrade, nbbo domain.NBBO) domain.DarkPoolSnapshot {
	type agg struct {
		volume, notional, buyVolume, sellVolume float64
		count                                    int
	}
	levels := make(map[float64]*agg)
	var totalBuy, totalSell float64

	for _, t := range trades {
		if !t.DarkPool || t.Size < minBlockSize || t.Notional < minNotional {
			continue
		}
		level := clusterPrice(t.Price)
		side := determineSide(t.Price, nbbo)

		a, ok := levels[level]
		if !ok {
			a = &agg{}
			levels[level] = a
		}
		a.volume += t.Size
		a.notional += t.Notional
		a.count++
		switch side {
		case domain.TradeSideBuy:
			a.buyVolume += t.Size
			totalBuy += t.Size
		case domain.TradeSideSell:
			a.sellVolume += t.Size
			totalSell += t.Size
		}
	}

	clusters := make([]domain.DarkPoolCluster, 0, len(levels))
	for price, a := range levels {
		clusters = append(clusters, domain.DarkPoolCluster{
			Price:      price,
			Volume:     a.volume,
			Notional:   a.notional,
			TradeCount: a.count,
			BuyVolume:  a.buyVolume,
			SellVolume: a.sellVolume,
			Strength:   determineStrength(a.notional, a.count),
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Notional > clusters[j].Notional })

	var support, resistance *domain.DarkPoolCluster
	for i := range clusters {
		c := clusters[i]
		if c.Price < spot && clusterSide(c) != domain.TradeSideSell {
			if support == nil || c.Price > support.Price {
				cc := c
				support = &cc
			}
		}
		if c.Price > spot && clusterSide(c) != domain.TradeSideBuy {
			if resistance == nil || c.Price < resistance.Price {
				cc := c
				resistance = &cc
			}
		}
	}

	if len(clusters) > 20 {
		clusters = clusters[:20]
	}

	snap := domain.DarkPoolSnapshot{
		Timestamp:  time.Now(),
		Symbol:     symbol,
		Clusters:   clusters,
		Support:    support,
		Resistance: resistance,
		BuyVolume:  totalBuy,
		SellVolume: totalSell,
	}

	m.snapshot.Store(&snap)
	if m.db != nil {
		if err := m.persist(snap); err != nil {
			m.log.Error().Err(err).Msg("failed to persist dark pool levels")
		}
	}
	return snap
}

func clusterSide(c domain.DarkPoolCluster) domain.TradeSide {
	switch {
	case c.BuyVolume > c.SellVolume*1.5:
		return domain.TradeSideBuy
	case c.SellVolume > c.BuyVolume*1.5:
		return domain.TradeSideSell
	default:
		return domain.TradeSideUnknown
	}
}

func (m *Mapper) persist(snap domain.DarkPoolSnapshot) error {
	date := snap.Timestamp.UTC().Format("2006-01-02")
	for _, c := range snap.Clusters {
		_, err := m.db.Exec(
			`INSERT OR REPLACE INTO dark_pool_levels
			 (date, symbol, price_level, total_volume, total_notional, trade_count, buy_volume, sell_volume, strength)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			date, snap.Symbol, c.Price, c.Volume, c.Notional, c.TradeCount, c.BuyVolume, c.SellVolume, string(c.Strength),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ConvictionModifier implements the dark-pool conviction rule (SPEC_FULL.md §4.10): +5/+10 when
// a support cluster sits between stop and entry (strength MEDIUM / HIGH+); -5/-10 when a
// resistance cluster sits between entry and target; ±5 on buy/sell volume dominance.
func (m *Mapper) ConvictionModifier(entry, stop, target float64) domain.ConvictionResult {
	snap := m.Latest()
	var modifier int
	var reasons []string

	if snap.Support != nil && stop < snap.Support.Price && snap.Support.Price < entry {
		if strong(snap.Support.Strength) {
			modifier += 10
			reasons = append(reasons, "strong dark-pool support above stop")
		} else if snap.Support.Strength == domain.StrengthMedium {
			modifier += 5
			reasons = append(reasons, "dark-pool support above stop")
		}
	}

	if snap.Resistance != nil && entry < snap.Resistance.Price && snap.Resistance.Price < target {
		if strong(snap.Resistance.Strength) {
			modifier -= 10
			reasons = append(reasons, "strong dark-pool resistance before target")
		} else if snap.Resistance.Strength == domain.StrengthMedium {
			modifier -= 5
			reasons = append(reasons, "dark-pool resistance before target")
		}
	}

	switch {
	case snap.BuyVolume > snap.SellVolume*2:
		modifier += 5
		reasons = append(reasons, "dark-pool flow heavily buying")
	case snap.SellVolume > snap.BuyVolume*2:
		modifier -= 5
		reasons = append(reasons, "dark-pool flow heavily selling")
	}

	return domain.ConvictionResult{Modifier: modifier, Reasons: reasons}
}

func strong(s domain.ClusterStrength) bool {
	return s == domain.StrengthHigh || s == domain.StrengthVeryHigh
}

// Name reports the subsystem's identifier. Mapper has no Run method and is not itself a
// scheduler.Job; the scheduled dark-pool job is an adapter that calls Update.
func (m *Mapper) Name() string { return "darkpool" }
