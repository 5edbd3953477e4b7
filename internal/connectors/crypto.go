package connectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
	"github.com/aristath/hydra/internal/marketdata"
)

const historyRingSize = 200

// ring is a small bounded (timestamp, value) history shared by the connectors that need to
// compare the latest sample to a prior one, per spec.md §4.3's "OI connectors maintain a bounded
// history ... and compare to the previous sample."
type ring struct {
	mu     sync.Mutex
	points []domain.HistoryPoint
}

func (r *ring) push(t time.Time, v float64) (prev *domain.HistoryPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.points) > 0 {
		p := r.points[len(r.points)-1]
		prev = &p
	}
	r.points = append(r.points, domain.HistoryPoint{Timestamp: t, Value: v})
	if len(r.points) > historyRingSize {
		r.points = r.points[len(r.points)-historyRingSize:]
	}
	return prev
}

// BinanceFundingRate polls the perpetual funding rate for BTCUSDT and feeds both a threshold
// Signal and the shared marketdata.Cache (crypto_cascade's funding input).
type BinanceFundingRate struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewBinanceFundingRate(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *BinanceFundingRate {
	return &BinanceFundingRate{
		Base:  NewBase("binance_funding_rate", domain.CategoryCrypto, 5*time.Minute, 0.9),
		deps:  newDeps(fetch, log, "binance_funding_rate"),
		cache: cache,
	}
}

type binanceFundingResp struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"lastFundingRate"`
}

func (c *BinanceFundingRate) Poll(ctx context.Context) []domain.Signal {
	var resp binanceFundingResp
	ok := c.fetch.GetJSON("https://fapi.binance.com/fapi/v1/premiumIndex", url.Values{"symbol": {"BTCUSDT"}}, nil, &resp)
	if !ok {
		c.MarkPolled(time.Now(), false)
		return nil
	}

	var rate float64
	if _, err := fmt.Sscanf(resp.FundingRate, "%f", &rate); err != nil {
		c.MarkPolled(time.Now(), false)
		return nil
	}
	c.MarkPolled(time.Now(), true)
	if c.cache != nil {
		snap := c.cache.Snapshot()
		c.cache.SetCrypto(rate, snap.OIDeltaPct)
	}

	if math.Abs(rate) <= 0.0005 {
		return nil
	}
	priority := domain.PriorityMedium
	if math.Abs(rate) > 0.001 {
		priority = domain.PriorityHigh
	}
	direction := 1.0
	if rate < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), "funding", fmt.Sprintf("%.5f", rate)),
		Name:             "Perpetual funding rate extreme",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         priority,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(rate)/0.001),
		Description:      fmt.Sprintf("BTCUSDT perpetual funding rate at %.4f%%", rate*100),
		AffectedSymbols:  []string{"BTC"},
		TradeImplication: "Extreme funding often precedes cascading liquidations against the crowded side.",
		DetectedAt:       time.Now(),
		TTLHours:         4,
		Reliability:      c.Reliability(),
	}}
}

// BinanceOpenInterest polls BTCUSDT open interest, maintains a bounded history, and feeds
// marketdata.Cache's OI-delta input for crypto_cascade.
type BinanceOpenInterest struct {
	Base
	deps
	cache *marketdata.Cache
	hist  ring
}

func NewBinanceOpenInterest(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *BinanceOpenInterest {
	return &BinanceOpenInterest{
		Base:  NewBase("binance_open_interest", domain.CategoryCrypto, 5*time.Minute, 0.9),
		deps:  newDeps(fetch, log, "binance_open_interest"),
		cache: cache,
	}
}

type binanceOIResp struct {
	OpenInterest string `json:"openInterest"`
}

func (c *BinanceOpenInterest) Poll(ctx context.Context) []domain.Signal {
	var resp binanceOIResp
	ok := c.fetch.GetJSON("https://fapi.binance.com/fapi/v1/openInterest", url.Values{"symbol": {"BTCUSDT"}}, nil, &resp)
	if !ok {
		c.MarkPolled(time.Now(), false)
		return nil
	}

	var oi float64
	if _, err := fmt.Sscanf(resp.OpenInterest, "%f", &oi); err != nil {
		c.MarkPolled(time.Now(), false)
		return nil
	}
	c.MarkPolled(time.Now(), true)
	prev := c.hist.push(time.Now(), oi)
	if prev == nil || prev.Value == 0 {
		return nil
	}

	deltaPct := (oi - prev.Value) / prev.Value
	if c.cache != nil {
		snap := c.cache.Snapshot()
		c.cache.SetCrypto(snap.FundingRate, deltaPct)
	}

	if math.Abs(deltaPct) < 0.03 {
		return nil
	}
	direction := 1.0
	if deltaPct < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), "oi_delta", fmt.Sprintf("%.4f", deltaPct)),
		Name:             "Open interest delta",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         domain.PriorityMedium,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(deltaPct)*5),
		Description:      fmt.Sprintf("BTCUSDT open interest moved %.2f%% since prior sample", deltaPct*100),
		AffectedSymbols:  []string{"BTC"},
		TradeImplication: "A sharp OI drop reflects forced deleveraging; a sharp rise reflects fresh leverage building.",
		DetectedAt:       time.Now(),
		TTLHours:         4,
		Reliability:      c.Reliability(),
	}}
}

// CoinglassLiquidations polls aggregate 24h liquidation totals across majors.
type CoinglassLiquidations struct {
	Base
	deps
}

func NewCoinglassLiquidations(fetch *httpfetch.Fetcher, log zerolog.Logger) *CoinglassLiquidations {
	return &CoinglassLiquidations{
		Base: NewBase("coinglass_liquidations", domain.CategoryCrypto, 15*time.Minute, 0.7),
		deps: newDeps(fetch, log, "coinglass_liquidations"),
	}
}

type coinglassResp struct {
	Data struct {
		Total24h float64 `json:"total24h"`
		Long24h  float64 `json:"long24h"`
		Short24h float64 `json:"short24h"`
	} `json:"data"`
}

func (c *CoinglassLiquidations) Poll(ctx context.Context) []domain.Signal {
	var resp coinglassResp
	ok := c.fetch.GetJSON("https://open-api.coinglass.com/public/v2/liquidation_info", nil, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok || resp.Data.Total24h < 200_000_000 {
		return nil
	}

	direction := 0.0
	if resp.Data.Long24h > resp.Data.Short24h*1.5 {
		direction = -1.0
	} else if resp.Data.Short24h > resp.Data.Long24h*1.5 {
		direction = 1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.0f", resp.Data.Total24h)),
		Name:             "Large cross-exchange liquidation event",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         domain.PriorityHigh,
		Direction:        direction,
		Strength:         math.Min(1.0, resp.Data.Total24h/1_000_000_000),
		Description:      fmt.Sprintf("$%.0fM liquidated in the last 24h (long $%.0fM / short $%.0fM)", resp.Data.Total24h/1e6, resp.Data.Long24h/1e6, resp.Data.Short24h/1e6),
		AffectedSymbols:  []string{"BTC", "ETH"},
		TradeImplication: "Cascading liquidations often mark local exhaustion of the dominant side.",
		DetectedAt:       time.Now(),
		TTLHours:         6,
		Reliability:      c.Reliability(),
	}}
}

// BTCETFFlow polls Farside's daily spot BTC ETF net-flow tracker.
type BTCETFFlow struct {
	Base
	deps
}

func NewBTCETFFlow(fetch *httpfetch.Fetcher, log zerolog.Logger) *BTCETFFlow {
	return &BTCETFFlow{
		Base: NewBase("btc_etf_flow", domain.CategoryCrypto, 60*time.Minute, 0.75),
		deps: newDeps(fetch, log, "btc_etf_flow"),
	}
}

type farsideResp struct {
	NetFlowUSD float64 `json:"net_flow_usd"`
	AsOf       string  `json:"as_of"`
}

func (c *BTCETFFlow) Poll(ctx context.Context) []domain.Signal {
	var resp farsideResp
	ok := c.fetch.GetJSON("https://farside.co.uk/api/btc-etf-flow", nil, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok || math.Abs(resp.NetFlowUSD) < 200_000_000 {
		return nil
	}

	direction := 1.0
	if resp.NetFlowUSD < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), resp.AsOf),
		Name:             "Spot BTC ETF net flow",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         domain.PriorityMedium,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(resp.NetFlowUSD)/1_000_000_000),
		Description:      fmt.Sprintf("Spot BTC ETFs saw $%.0fM net flow on %s", resp.NetFlowUSD/1e6, resp.AsOf),
		AffectedSymbols:  []string{"BTC"},
		TradeImplication: "Large sustained ETF flows are a slower, institutional directional tell.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}

// WhaleAlert polls recent large on-chain transfers above a notional floor.
type WhaleAlert struct {
	Base
	deps
	apiKey string
}

func NewWhaleAlert(fetch *httpfetch.Fetcher, log zerolog.Logger, apiKey string) *WhaleAlert {
	return &WhaleAlert{
		Base:   NewBase("whale_alert", domain.CategoryCrypto, 10*time.Minute, 0.6),
		deps:   newDeps(fetch, log, "whale_alert"),
		apiKey: apiKey,
	}
}

type whaleAlertResp struct {
	Transactions []struct {
		Hash           string  `json:"hash"`
		AmountUSD      float64 `json:"amount_usd"`
		Symbol         string  `json:"symbol"`
		From           struct{ OwnerType string `json:"owner_type"` } `json:"from"`
		To             struct{ OwnerType string `json:"owner_type"` } `json:"to"`
	} `json:"transactions"`
}

func (c *WhaleAlert) Poll(ctx context.Context) []domain.Signal {
	if c.apiKey == "" {
		c.MarkPolled(time.Now(), false)
		return nil
	}
	var resp whaleAlertResp
	ok := c.fetch.GetJSON("https://api.whale-alert.io/v1/transactions", url.Values{
		"api_key": {c.apiKey}, "min_value": {"10000000"},
	}, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}

	var signals []domain.Signal
	for _, tx := range resp.Transactions {
		if tx.AmountUSD < 10_000_000 {
			continue
		}
		direction := 0.0
		if tx.From.OwnerType == "unknown" && tx.To.OwnerType == "exchange" {
			direction = -1.0
		} else if tx.From.OwnerType == "exchange" && tx.To.OwnerType == "unknown" {
			direction = 1.0
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), tx.Hash),
			Name:             "Whale transfer",
			Source:           c.Name(),
			Category:         domain.CategoryCrypto,
			Priority:         domain.PriorityLow,
			Direction:        direction,
			Strength:         math.Min(1.0, tx.AmountUSD/100_000_000),
			Description:      fmt.Sprintf("$%.1fM %s transfer observed", tx.AmountUSD/1e6, tx.Symbol),
			AffectedSymbols:  []string{tx.Symbol},
			TradeImplication: "Exchange inflows skew bearish; exchange outflows skew accumulation.",
			DetectedAt:       time.Now(),
			TTLHours:         8,
			Reliability:      c.Reliability(),
		})
	}
	return signals
}

// TokenUnlocks polls a fixed watchlist for upcoming large vesting unlocks.
type TokenUnlocks struct {
	Base
	deps
}

func NewTokenUnlocks(fetch *httpfetch.Fetcher, log zerolog.Logger) *TokenUnlocks {
	return &TokenUnlocks{
		Base: NewBase("token_unlocks", domain.CategoryCrypto, 240*time.Minute, 0.6),
		deps: newDeps(fetch, log, "token_unlocks"),
	}
}

type tokenUnlockResp struct {
	Events []struct {
		Symbol       string  `json:"symbol"`
		UnlockUSD    float64 `json:"unlock_value_usd"`
		PercentOfSup float64 `json:"percent_of_supply"`
		UnlockDate   string  `json:"unlock_date"`
	} `json:"events"`
}

func (c *TokenUnlocks) Poll(ctx context.Context) []domain.Signal {
	var resp tokenUnlockResp
	ok := c.fetch.GetJSON("https://token.unlocks.app/api/v1/upcoming", nil, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}

	var signals []domain.Signal
	for _, ev := range resp.Events {
		if ev.PercentOfSup < 0.02 {
			continue
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), ev.Symbol, ev.UnlockDate),
			Name:             "Large token unlock",
			Source:           c.Name(),
			Category:         domain.CategoryCrypto,
			Priority:         domain.PriorityLow,
			Direction:        -1.0,
			Strength:         math.Min(1.0, ev.PercentOfSup*10),
			Description:      fmt.Sprintf("%s unlocks %.1f%% of supply ($%.0fM) on %s", ev.Symbol, ev.PercentOfSup*100, ev.UnlockUSD/1e6, ev.UnlockDate),
			AffectedSymbols:  []string{ev.Symbol},
			TradeImplication: "Large unlocks add sell-side supply pressure into the unlock date.",
			DetectedAt:       time.Now(),
			TTLHours:         168,
			Reliability:      c.Reliability(),
		})
	}
	return signals
}

// DeribitOptionsSkew polls BTC 25-delta risk reversal skew from Deribit.
type DeribitOptionsSkew struct {
	Base
	deps
}

func NewDeribitOptionsSkew(fetch *httpfetch.Fetcher, log zerolog.Logger) *DeribitOptionsSkew {
	return &DeribitOptionsSkew{
		Base: NewBase("deribit_options_skew", domain.CategoryCrypto, 30*time.Minute, 0.7),
		deps: newDeps(fetch, log, "deribit_options_skew"),
	}
}

type deribitSkewResp struct {
	Result struct {
		Skew25D float64 `json:"skew_25d"`
	} `json:"result"`
}

func (c *DeribitOptionsSkew) Poll(ctx context.Context) []domain.Signal {
	var resp deribitSkewResp
	ok := c.fetch.GetJSON("https://www.deribit.com/api/v2/public/get_volatility_index", url.Values{"currency": {"BTC"}}, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok || math.Abs(resp.Result.Skew25D) < 5 {
		return nil
	}

	direction := 1.0
	if resp.Result.Skew25D < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.2f", resp.Result.Skew25D)),
		Name:             "BTC options skew extreme",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         domain.PriorityMedium,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(resp.Result.Skew25D)/20),
		Description:      fmt.Sprintf("BTC 25-delta risk reversal skew at %.1f", resp.Result.Skew25D),
		AffectedSymbols:  []string{"BTC"},
		TradeImplication: "Skewed put demand reflects hedging flow; skewed call demand reflects speculative upside chase.",
		DetectedAt:       time.Now(),
		TTLHours:         6,
		Reliability:      c.Reliability(),
	}}
}

// GlassnodeOnChain polls exchange net-flow, a classic on-chain accumulation/distribution tell.
type GlassnodeOnChain struct {
	Base
	deps
	apiKey string
}

func NewGlassnodeOnChain(fetch *httpfetch.Fetcher, log zerolog.Logger, apiKey string) *GlassnodeOnChain {
	return &GlassnodeOnChain{
		Base:   NewBase("glassnode_onchain", domain.CategoryCrypto, 60*time.Minute, 0.75),
		deps:   newDeps(fetch, log, "glassnode_onchain"),
		apiKey: apiKey,
	}
}

type glassnodePoint struct {
	Timestamp int64   `json:"t"`
	Value     float64 `json:"v"`
}

func (c *GlassnodeOnChain) Poll(ctx context.Context) []domain.Signal {
	if c.apiKey == "" {
		c.MarkPolled(time.Now(), false)
		return nil
	}
	var points []glassnodePoint
	ok := c.fetch.GetJSON("https://api.glassnode.com/v1/metrics/transactions/transfers_volume_exchanges_net",
		url.Values{"a": {"BTC"}, "api_key": {c.apiKey}}, nil, &points)
	c.MarkPolled(time.Now(), ok)
	if !ok || len(points) == 0 {
		return nil
	}

	latest := points[len(points)-1].Value
	if math.Abs(latest) < 5000 {
		return nil
	}
	direction := -1.0
	if latest < 0 {
		direction = 1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.0f", points[len(points)-1].Timestamp)),
		Name:             "Exchange net-flow extreme",
		Source:           c.Name(),
		Category:         domain.CategoryCrypto,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(latest)/20000),
		Description:      fmt.Sprintf("BTC exchange net flow at %.0f BTC", latest),
		AffectedSymbols:  []string{"BTC"},
		TradeImplication: "Net inflows to exchanges precede distribution; net outflows precede accumulation.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}
