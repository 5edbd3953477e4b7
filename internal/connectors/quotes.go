package connectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
	"github.com/aristath/hydra/internal/marketdata"
)

// yahooChartResp mirrors the subset of Yahoo Finance's public v8 chart API this package reads,
// grounded on internal/clients/yahoo/client.go's quote-fetching pattern.
type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketVolume int64 `json:"regularMarketVolume"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// dailyBars is the last N daily OHLCV bars for a symbol, oldest first.
type dailyBars struct {
	Open, High, Low, Close []float64
	Volume                 []int64
}

func fetchDailyBars(fetch *httpfetch.Fetcher, symbol string, days int) (dailyBars, bool) {
	var resp yahooChartResp
	ok := fetch.GetJSON(fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s", symbol),
		url.Values{"range": {fmt.Sprintf("%dd", days)}, "interval": {"1d"}}, nil, &resp)
	if !ok || len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return dailyBars{}, false
	}
	q := resp.Chart.Result[0].Indicators.Quote[0]
	if len(q.Close) == 0 {
		return dailyBars{}, false
	}
	return dailyBars{Open: q.Open, High: q.High, Low: q.Low, Close: q.Close, Volume: q.Volume}, true
}

func last(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return xs[len(xs)-1], true
}

func prior(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	return xs[len(xs)-2], true
}

func pctChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev
}

// VIXQuote polls CBOE VIX daily closes, feeds marketdata.Cache, and emits its own signal when the
// close is 25 or higher, with strength (close-20)/20 capped at 1.
type VIXQuote struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewVIXQuote(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *VIXQuote {
	return &VIXQuote{Base: NewBase("vix_quote", domain.CategoryEquities, 5*time.Minute, 0.95), deps: newDeps(fetch, log, "vix_quote"), cache: cache}
}

func (c *VIXQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "^VIX", 5)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	openV, _ := last(bars.Open)
	priorClose, havePrior := prior(bars.Close)
	change := 0.0
	if havePrior {
		change = pctChange(closeV, priorClose)
	}
	if c.cache != nil {
		c.cache.SetVIX(openV, closeV, change)
	}

	if closeV < 25 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.2f", closeV)),
		Name:             "VIX elevated",
		Source:           c.Name(),
		Category:         domain.CategoryEquities,
		Priority:         domain.PriorityMedium,
		Direction:        -1.0,
		Strength:         math.Min(1.0, (closeV-20)/20),
		Description:      fmt.Sprintf("VIX closed at %.2f, %.1f%% vs prior day", closeV, change*100),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Elevated VIX reflects systematic hedging demand and a richer options surface.",
		DetectedAt:       time.Now(),
		TTLHours:         12,
		Reliability:      c.Reliability(),
	}}
}

// SKEWQuote polls the CBOE SKEW index, a tail-risk pricing gauge.
type SKEWQuote struct {
	Base
	deps
}

func NewSKEWQuote(fetch *httpfetch.Fetcher, log zerolog.Logger) *SKEWQuote {
	return &SKEWQuote{Base: NewBase("skew_quote", domain.CategoryEquities, 15*time.Minute, 0.8), deps: newDeps(fetch, log, "skew_quote")}
}

func (c *SKEWQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "^SKEW", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	if closeV < 145 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.1f", closeV)),
		Name:             "SKEW tail-risk extreme",
		Source:           c.Name(),
		Category:         domain.CategoryEquities,
		Priority:         domain.PriorityLow,
		Direction:        -1.0,
		Strength:         math.Min(1.0, (closeV-135)/25),
		Description:      fmt.Sprintf("CBOE SKEW index at %.1f", closeV),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Elevated SKEW reflects heavy tail-hedge (far OTM put) demand.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}

// DXYQuote polls the US Dollar Index, a standard cross-asset risk gauge.
type DXYQuote struct {
	Base
	deps
}

func NewDXYQuote(fetch *httpfetch.Fetcher, log zerolog.Logger) *DXYQuote {
	return &DXYQuote{Base: NewBase("dxy_quote", domain.CategoryFX, 15*time.Minute, 0.8), deps: newDeps(fetch, log, "dxy_quote")}
}

func (c *DXYQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "DX-Y.NYB", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	priorClose, havePrior := prior(bars.Close)
	if !havePrior {
		return nil
	}
	change := pctChange(closeV, priorClose)
	if math.Abs(change) < 0.007 {
		return nil
	}
	direction := 1.0
	if change < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.3f", change)),
		Name:             "Dollar index sharp move",
		Source:           c.Name(),
		Category:         domain.CategoryFX,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(change)/0.015),
		Description:      fmt.Sprintf("DXY moved %.2f%% to %.2f", change*100, closeV),
		AffectedSymbols:  []string{"GLD", "BTC"},
		TradeImplication: "A sharp dollar move pressures commodities and risk assets priced in USD.",
		DetectedAt:       time.Now(),
		TTLHours:         12,
		Reliability:      c.Reliability(),
	}}
}

// CopperFutures polls COMEX copper, the classic global-growth-proxy commodity.
type CopperFutures struct {
	Base
	deps
}

func NewCopperFutures(fetch *httpfetch.Fetcher, log zerolog.Logger) *CopperFutures {
	return &CopperFutures{Base: NewBase("copper_futures", domain.CategoryMacro, 30*time.Minute, 0.7), deps: newDeps(fetch, log, "copper_futures")}
}

func (c *CopperFutures) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "HG=F", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	priorClose, havePrior := prior(bars.Close)
	if !havePrior {
		return nil
	}
	change := pctChange(closeV, priorClose)
	if math.Abs(change) < 0.02 {
		return nil
	}
	direction := 1.0
	if change < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.3f", change)),
		Name:             "Copper sharp move",
		Source:           c.Name(),
		Category:         domain.CategoryMacro,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(change)/0.04),
		Description:      fmt.Sprintf("Copper futures moved %.2f%% to %.3f", change*100, closeV),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Copper is a leading global-growth proxy; sharp moves often front-run macro data.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}

// CreditSpread polls HYG/LQD (high-yield vs. investment-grade bond ETFs) and derives a
// proxy credit spread from their relative performance.
type CreditSpread struct {
	Base
	deps
}

func NewCreditSpread(fetch *httpfetch.Fetcher, log zerolog.Logger) *CreditSpread {
	return &CreditSpread{Base: NewBase("credit_spread", domain.CategoryRates, 30*time.Minute, 0.75), deps: newDeps(fetch, log, "credit_spread")}
}

func (c *CreditSpread) Poll(ctx context.Context) []domain.Signal {
	hyg, ok1 := fetchDailyBars(c.fetch, "HYG", 3)
	lqd, ok2 := fetchDailyBars(c.fetch, "LQD", 3)
	c.MarkPolled(time.Now(), ok1 && ok2)
	if !ok1 || !ok2 {
		return nil
	}
	hygClose, _ := last(hyg.Close)
	hygPrior, hOK := prior(hyg.Close)
	lqdClose, _ := last(lqd.Close)
	lqdPrior, lOK := prior(lqd.Close)
	if !hOK || !lOK {
		return nil
	}
	relative := pctChange(hygClose, hygPrior) - pctChange(lqdClose, lqdPrior)
	if relative > -0.004 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.4f", relative)),
		Name:             "Credit spread widening",
		Source:           c.Name(),
		Category:         domain.CategoryRates,
		Priority:         domain.PriorityMedium,
		Direction:        -1.0,
		Strength:         math.Min(1.0, math.Abs(relative)/0.01),
		Description:      fmt.Sprintf("HYG underperformed LQD by %.2f%% on the day", relative*100),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "High-yield underperformance vs. investment-grade is an early credit-stress tell.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}

// TANQuote polls the Invesco Solar ETF, a cyclical/rate-sensitive growth proxy.
type TANQuote struct {
	Base
	deps
}

func NewTANQuote(fetch *httpfetch.Fetcher, log zerolog.Logger) *TANQuote {
	return &TANQuote{Base: NewBase("tan_quote", domain.CategoryEquities, 30*time.Minute, 0.6), deps: newDeps(fetch, log, "tan_quote")}
}

func (c *TANQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "TAN", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	priorClose, havePrior := prior(bars.Close)
	if !havePrior {
		return nil
	}
	change := pctChange(closeV, priorClose)
	if math.Abs(change) < 0.04 {
		return nil
	}
	direction := 1.0
	if change < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.3f", change)),
		Name:             "Solar ETF sharp move",
		Source:           c.Name(),
		Category:         domain.CategoryEquities,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(change)/0.08),
		Description:      fmt.Sprintf("TAN moved %.2f%% to %.2f", change*100, closeV),
		AffectedSymbols:  []string{"TAN"},
		TradeImplication: "TAN's high rate-sensitivity makes it a fast tell on real-rate repricing.",
		DetectedAt:       time.Now(),
		TTLHours:         24,
		Reliability:      c.Reliability(),
	}}
}

// SPYQuote polls SPY daily OHLCV and feeds marketdata.Cache's SPY inputs (volume ratio, range,
// change) consumed by premarket_gap, flow_imbalance, volume_surge, and cross_asset.
type SPYQuote struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewSPYQuote(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *SPYQuote {
	return &SPYQuote{Base: NewBase("spy_quote", domain.CategoryEquities, 5*time.Minute, 0.95), deps: newDeps(fetch, log, "spy_quote"), cache: cache}
}

func (c *SPYQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "SPY", 25)
	c.MarkPolled(time.Now(), ok)
	if !ok || len(bars.Close) == 0 {
		return nil
	}

	n := len(bars.Close)
	closeV := bars.Close[n-1]
	highV := bars.High[n-1]
	lowV := bars.Low[n-1]
	rangePct := 0.0
	if closeV != 0 {
		rangePct = (highV - lowV) / closeV
	}
	priorClose, havePrior := prior(bars.Close)
	changePct := 0.0
	if havePrior {
		changePct = pctChange(closeV, priorClose)
	}

	var avgVol float64
	volWindow := bars.Volume
	if len(volWindow) > 20 {
		volWindow = volWindow[len(volWindow)-20:]
	}
	for _, v := range volWindow {
		avgVol += float64(v)
	}
	if len(volWindow) > 0 {
		avgVol /= float64(len(volWindow))
	}
	volRatio := 0.0
	if avgVol > 0 {
		volRatio = float64(bars.Volume[n-1]) / avgVol
	}

	if c.cache != nil {
		c.cache.SetSPY(volRatio, rangePct, changePct)
	}

	if rangePct < 0.008 && volRatio < 1.2 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02")),
		Name:             "SPY range/volume surge",
		Source:           c.Name(),
		Category:         domain.CategoryEquities,
		Priority:         domain.PriorityMedium,
		Direction:        0,
		Strength:         math.Min(1.0, math.Max(rangePct/0.025, volRatio/3)),
		Description:      fmt.Sprintf("SPY range %.2f%%, volume %.2fx 20-day average", rangePct*100, volRatio),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Elevated range and volume together flag a high-participation session.",
		DetectedAt:       time.Now(),
		TTLHours:         8,
		Reliability:      c.Reliability(),
	}}
}

// TLTQuote polls TLT (20+yr Treasury ETF) daily change and feeds marketdata.Cache's cross-asset
// input jointly with GLDQuote.
type TLTQuote struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewTLTQuote(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *TLTQuote {
	return &TLTQuote{Base: NewBase("tlt_quote", domain.CategoryRates, 10*time.Minute, 0.85), deps: newDeps(fetch, log, "tlt_quote"), cache: cache}
}

func (c *TLTQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "TLT", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	priorClose, havePrior := prior(bars.Close)
	change := 0.0
	if havePrior {
		change = pctChange(closeV, priorClose)
	}
	if c.cache != nil {
		snap := c.cache.Snapshot()
		c.cache.SetCrossAsset(change, snap.GLDChangePct)
	}
	if math.Abs(change) < 0.01 {
		return nil
	}
	direction := 1.0
	if change < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.3f", change)),
		Name:             "TLT sharp move",
		Source:           c.Name(),
		Category:         domain.CategoryRates,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(change)/0.02),
		Description:      fmt.Sprintf("TLT moved %.2f%% to %.2f", change*100, closeV),
		AffectedSymbols:  []string{"TLT"},
		TradeImplication: "Sharp long-bond moves reflect fast real-rate repricing felt across risk assets.",
		DetectedAt:       time.Now(),
		TTLHours:         12,
		Reliability:      c.Reliability(),
	}}
}

// GLDQuote polls GLD (gold ETF) daily change and feeds marketdata.Cache's cross-asset input
// jointly with TLTQuote.
type GLDQuote struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewGLDQuote(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *GLDQuote {
	return &GLDQuote{Base: NewBase("gld_quote", domain.CategoryMetals, 10*time.Minute, 0.85), deps: newDeps(fetch, log, "gld_quote"), cache: cache}
}

func (c *GLDQuote) Poll(ctx context.Context) []domain.Signal {
	bars, ok := fetchDailyBars(c.fetch, "GLD", 3)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}
	closeV, _ := last(bars.Close)
	priorClose, havePrior := prior(bars.Close)
	change := 0.0
	if havePrior {
		change = pctChange(closeV, priorClose)
	}
	if c.cache != nil {
		snap := c.cache.Snapshot()
		c.cache.SetCrossAsset(snap.TLTChangePct, change)
	}
	if math.Abs(change) < 0.01 {
		return nil
	}
	direction := 1.0
	if change < 0 {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), fmt.Sprintf("%.3f", change)),
		Name:             "GLD sharp move",
		Source:           c.Name(),
		Category:         domain.CategoryMetals,
		Priority:         domain.PriorityLow,
		Direction:        direction,
		Strength:         math.Min(1.0, math.Abs(change)/0.02),
		Description:      fmt.Sprintf("GLD moved %.2f%% to %.2f", change*100, closeV),
		AffectedSymbols:  []string{"GLD"},
		TradeImplication: "Gold moves independent of rates often reflect safe-haven demand shifts.",
		DetectedAt:       time.Now(),
		TTLHours:         12,
		Reliability:      c.Reliability(),
	}}
}

// sectorETFs is the fixed 5-ETF breadth watchlist.
var sectorETFs = []string{"XLF", "XLK", "XLE", "XLV", "XLY"}

// SectorBreadth polls the 5 sector ETFs' prior-day change and feeds marketdata.Cache's breadth
// input for the breadth component.
type SectorBreadth struct {
	Base
	deps
	cache *marketdata.Cache
}

func NewSectorBreadth(fetch *httpfetch.Fetcher, log zerolog.Logger, cache *marketdata.Cache) *SectorBreadth {
	return &SectorBreadth{Base: NewBase("sector_breadth", domain.CategoryEquities, 10*time.Minute, 0.85), deps: newDeps(fetch, log, "sector_breadth"), cache: cache}
}

func (c *SectorBreadth) Poll(ctx context.Context) []domain.Signal {
	changes := make([]float64, 0, len(sectorETFs))
	ok := true
	for _, sym := range sectorETFs {
		bars, got := fetchDailyBars(c.fetch, sym, 3)
		if !got {
			ok = false
			continue
		}
		closeV, _ := last(bars.Close)
		priorClose, havePrior := prior(bars.Close)
		if !havePrior {
			continue
		}
		changes = append(changes, pctChange(closeV, priorClose))
	}
	c.MarkPolled(time.Now(), ok && len(changes) == len(sectorETFs))
	if len(changes) < len(sectorETFs) {
		return nil
	}
	if c.cache != nil {
		c.cache.SetBreadth(changes)
	}

	var ups, downs int
	for _, chg := range changes {
		if chg > 0.001 {
			ups++
		} else if chg < -0.001 {
			downs++
		}
	}
	if ups+downs < 3 {
		return nil
	}
	ratio := math.Max(float64(ups), float64(downs)) / float64(len(sectorETFs))
	if ratio <= 0.60 {
		return nil
	}
	direction := 1.0
	if downs > ups {
		direction = -1.0
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), time.Now().Format("2006-01-02")),
		Name:             "Sector breadth collapse",
		Source:           c.Name(),
		Category:         domain.CategoryEquities,
		Priority:         domain.PriorityMedium,
		Direction:        direction,
		Strength:         math.Min(1.0, (ratio-0.60)/0.40+0.3),
		Description:      fmt.Sprintf("%d of %d tracked sector ETFs moved the same direction", int(math.Max(float64(ups), float64(downs))), len(sectorETFs)),
		AffectedSymbols:  sectorETFs,
		TradeImplication: "One-directional sector breadth reflects a systematic, not idiosyncratic, move.",
		DetectedAt:       time.Now(),
		TTLHours:         8,
		Reliability:      c.Reliability(),
	}}
}
