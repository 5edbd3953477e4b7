package connectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hydra/internal/domain"
	"github.com/aristath/hydra/internal/httpfetch"
)

// fredSeriesSpec pairs a FRED series id with the threshold that makes its latest-vs-prior move
// worth a signal, per spec.md §4.3's "iterate a fixed set of series; compare latest to prior;
// emit tier-gated signals at series-specific thresholds."
type fredSeriesSpec struct {
	id          string
	label       string
	category    domain.Category
	deltaTier   float64 // absolute change in series units that triggers a signal
	tradeNote   string
}

var fredSeries = []fredSeriesSpec{
	{"JTSJOL", "JOLTS job openings", domain.CategoryMacro, 300, "Sharp labor-demand shifts move Fed rate-path expectations."},
	{"ICSA", "Initial jobless claims", domain.CategoryMacro, 30000, "Claims surprises move the curve faster than most macro prints."},
	{"CPIAUCSL", "CPI index level", domain.CategoryMacro, 0.3, "Inflation surprises dominate risk-asset positioning for days."},
	{"FEDFUNDS", "Fed funds rate", domain.CategoryRates, 0.25, "A funds-rate move is a direct, mechanical repricing event."},
	{"T10Y2Y", "10y-2y Treasury spread", domain.CategoryRates, 0.15, "Curve inversion/steepening shifts regime signals on their own."},
	{"BAMLH0A0HYM2", "HY credit spread", domain.CategoryRates, 0.3, "Widening HY spreads are an early-warning risk-off tell."},
}

// FREDSeries iterates the fixed series list above, comparing each latest observation to the prior.
type FREDSeries struct {
	Base
	deps
	apiKey string
	hist   map[string]*ring
}

func NewFREDSeries(fetch *httpfetch.Fetcher, log zerolog.Logger, apiKey string) *FREDSeries {
	hist := make(map[string]*ring, len(fredSeries))
	for _, spec := range fredSeries {
		hist[spec.id] = &ring{}
	}
	return &FREDSeries{
		Base:   NewBase("fred_series", domain.CategoryMacro, 60*time.Minute, 0.9),
		deps:   newDeps(fetch, log, "fred_series"),
		apiKey: apiKey,
		hist:   hist,
	}
}

type fredObsResp struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func (c *FREDSeries) Poll(ctx context.Context) []domain.Signal {
	if c.apiKey == "" {
		c.MarkPolled(time.Now(), false)
		return nil
	}

	var signals []domain.Signal
	ok := true
	for _, spec := range fredSeries {
		var resp fredObsResp
		got := c.fetch.GetJSON("https://api.stlouisfed.org/fred/series/observations", url.Values{
			"series_id": {spec.id}, "api_key": {c.apiKey}, "file_type": {"json"}, "sort_order": {"desc"}, "limit": {"1"},
		}, nil, &resp)
		if !got || len(resp.Observations) == 0 {
			ok = false
			continue
		}
		value, err := strconv.ParseFloat(resp.Observations[0].Value, 64)
		if err != nil {
			ok = false
			continue
		}
		prev := c.hist[spec.id].push(time.Now(), value)
		if prev == nil {
			continue
		}
		delta := value - prev.Value
		if math.Abs(delta) < spec.deltaTier {
			continue
		}
		direction := 1.0
		if delta < 0 {
			direction = -1.0
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), spec.id, resp.Observations[0].Date),
			Name:             spec.label + " surprise",
			Source:           c.Name(),
			Category:         spec.category,
			Priority:         domain.PriorityMedium,
			Direction:        direction,
			Strength:         math.Min(1.0, math.Abs(delta)/(spec.deltaTier*3)),
			Description:      fmt.Sprintf("%s moved %.3f to %.3f", spec.label, delta, value),
			AffectedSymbols:  []string{"SPY"},
			TradeImplication: spec.tradeNote,
			DetectedAt:       time.Now(),
			TTLHours:         48,
			Reliability:      c.Reliability(),
		})
	}
	c.MarkPolled(time.Now(), ok)
	return signals
}

// TreasuryAuctionResults polls recent Treasury auction bid-to-cover and tail metrics.
type TreasuryAuctionResults struct {
	Base
	deps
}

func NewTreasuryAuctionResults(fetch *httpfetch.Fetcher, log zerolog.Logger) *TreasuryAuctionResults {
	return &TreasuryAuctionResults{
		Base: NewBase("treasury_auction_results", domain.CategoryRates, 240*time.Minute, 0.8),
		deps: newDeps(fetch, log, "treasury_auction_results"),
	}
}

type treasuryAuctionResp struct {
	Data []struct {
		SecurityTerm string  `json:"security_term"`
		AuctionDate  string  `json:"auction_date"`
		BidToCover   float64 `json:"bid_to_cover_ratio,string"`
		HighYield    float64 `json:"high_yield,string"`
	} `json:"data"`
}

func (c *TreasuryAuctionResults) Poll(ctx context.Context) []domain.Signal {
	var resp treasuryAuctionResp
	ok := c.fetch.GetJSON("https://api.fiscaldata.treasury.gov/services/api/fiscal_service/v1/accounting/od/auctions_query",
		url.Values{"sort": {"-auction_date"}, "page[size]": {"5"}}, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}

	var signals []domain.Signal
	for _, a := range resp.Data {
		if a.BidToCover >= 2.2 {
			continue
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), a.SecurityTerm, a.AuctionDate),
			Name:             "Weak Treasury auction",
			Source:           c.Name(),
			Category:         domain.CategoryRates,
			Priority:         domain.PriorityMedium,
			Direction:        -1.0,
			Strength:         math.Min(1.0, (2.2-a.BidToCover)/0.7),
			Description:      fmt.Sprintf("%s auction on %s drew bid-to-cover %.2f", a.SecurityTerm, a.AuctionDate, a.BidToCover),
			AffectedSymbols:  []string{"TLT"},
			TradeImplication: "Weak demand auctions pressure long-duration rate-sensitive assets.",
			DetectedAt:       time.Now(),
			TTLHours:         24,
			Reliability:      c.Reliability(),
		})
	}
	return signals
}

// ISMManufacturingPMI polls the ISM manufacturing headline index.
type ISMManufacturingPMI struct {
	Base
	deps
	hist ring
}

func NewISMManufacturingPMI(fetch *httpfetch.Fetcher, log zerolog.Logger) *ISMManufacturingPMI {
	return &ISMManufacturingPMI{
		Base: NewBase("ism_manufacturing_pmi", domain.CategoryMacro, 240*time.Minute, 0.75),
		deps: newDeps(fetch, log, "ism_manufacturing_pmi"),
	}
}

type ismRespWrapper struct {
	Value float64 `json:"value"`
	AsOf  string  `json:"as_of"`
}

func (c *ISMManufacturingPMI) Poll(ctx context.Context) []domain.Signal {
	var resp ismRespWrapper
	ok := c.fetch.GetJSON("https://www.ismworld.org/api/v1/pmi/manufacturing/latest", nil, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok {
		return nil
	}

	prev := c.hist.push(time.Now(), resp.Value)
	if resp.Value >= 50 || (prev != nil && prev.Value >= 50) {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), resp.AsOf),
		Name:             "ISM manufacturing contraction",
		Source:           c.Name(),
		Category:         domain.CategoryMacro,
		Priority:         domain.PriorityLow,
		Direction:        -1.0,
		Strength:         math.Min(1.0, (50-resp.Value)/10),
		Description:      fmt.Sprintf("ISM manufacturing PMI at %.1f (sub-50 contraction)", resp.Value),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Sustained sub-50 prints build a cyclical-slowdown narrative.",
		DetectedAt:       time.Now(),
		TTLHours:         48,
		Reliability:      c.Reliability(),
	}}
}

// ChallengerLayoffs polls the Challenger, Gray & Christmas monthly layoffs report.
type ChallengerLayoffs struct {
	Base
	deps
}

func NewChallengerLayoffs(fetch *httpfetch.Fetcher, log zerolog.Logger) *ChallengerLayoffs {
	return &ChallengerLayoffs{
		Base: NewBase("challenger_layoffs", domain.CategoryMacro, 1440*time.Minute, 0.7),
		deps: newDeps(fetch, log, "challenger_layoffs"),
	}
}

type challengerResp struct {
	TotalAnnounced int    `json:"total_announced"`
	Month          string `json:"month"`
}

func (c *ChallengerLayoffs) Poll(ctx context.Context) []domain.Signal {
	var resp challengerResp
	ok := c.fetch.GetJSON("https://www.challengergray.com/api/v1/reports/latest", nil, nil, &resp)
	c.MarkPolled(time.Now(), ok)
	if !ok || resp.TotalAnnounced < 50000 {
		return nil
	}
	return []domain.Signal{{
		ID:               domain.SignalID(c.Name(), resp.Month),
		Name:             "Elevated layoff announcements",
		Source:           c.Name(),
		Category:         domain.CategoryMacro,
		Priority:         domain.PriorityLow,
		Direction:        -1.0,
		Strength:         math.Min(1.0, float64(resp.TotalAnnounced)/150000),
		Description:      fmt.Sprintf("%d layoffs announced in %s", resp.TotalAnnounced, resp.Month),
		AffectedSymbols:  []string{"SPY"},
		TradeImplication: "Layoff spikes lead softer labor prints by one to two months.",
		DetectedAt:       time.Now(),
		TTLHours:         720,
		Reliability:      c.Reliability(),
	}}
}
