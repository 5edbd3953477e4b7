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
)

// flowTickers is the fixed watchlist UnusualWhalesFlow polls for coarse call/put premium ratio.
var flowTickers = []string{"SPY", "QQQ", "IWM"}

// UnusualWhalesFlow emits a coarse Signal from aggregate call/put premium, independent of the
// full Options-Flow aux subsystem (internal/aux/flow), which ingests raw trade batches directly.
type UnusualWhalesFlow struct {
	Base
	deps
	apiKey string
}

func NewUnusualWhalesFlow(fetch *httpfetch.Fetcher, log zerolog.Logger, apiKey string) *UnusualWhalesFlow {
	return &UnusualWhalesFlow{
		Base:   NewBase("unusual_whales_flow", domain.CategoryOptions, 10*time.Minute, 0.7),
		deps:   newDeps(fetch, log, "unusual_whales_flow"),
		apiKey: apiKey,
	}
}

type unusualWhalesResp struct {
	Data struct {
		CallPremium float64 `json:"call_premium"`
		PutPremium  float64 `json:"put_premium"`
	} `json:"data"`
}

func (c *UnusualWhalesFlow) Poll(ctx context.Context) []domain.Signal {
	if c.apiKey == "" {
		c.MarkPolled(time.Now(), false)
		return nil
	}

	var signals []domain.Signal
	ok := true
	for _, ticker := range flowTickers {
		var resp unusualWhalesResp
		got := c.fetch.GetJSON(fmt.Sprintf("https://api.unusualwhales.com/api/stock/%s/flow-alerts", ticker),
			url.Values{"api_key": {c.apiKey}}, nil, &resp)
		if !got || resp.Data.PutPremium == 0 {
			ok = ok && got
			continue
		}
		ratio := resp.Data.CallPremium / resp.Data.PutPremium
		if ratio <= 1.5 && ratio >= 0.67 {
			continue
		}
		direction := 1.0
		if ratio < 1 {
			direction = -1.0
		}
		signals = append(signals, domain.Signal{
			ID:               domain.SignalID(c.Name(), ticker, fmt.Sprintf("%.2f", ratio)),
			Name:             "Options flow call/put imbalance",
			Source:           c.Name(),
			Category:         domain.CategoryOptions,
			Priority:         domain.PriorityMedium,
			Direction:        direction,
			Strength:         math.Min(1.0, math.Abs(math.Log(ratio))/math.Log(3)),
			Description:      fmt.Sprintf("%s call/put premium ratio at %.2f", ticker, ratio),
			AffectedSymbols:  []string{ticker},
			TradeImplication: "A skewed premium ratio signals dominant institutional options positioning.",
			DetectedAt:       time.Now(),
			TTLHours:         4,
			Reliability:      c.Reliability(),
		})
	}
	c.MarkPolled(time.Now(), ok)
	return signals
}
